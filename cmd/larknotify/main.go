package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"larknotify/internal/config"
	"larknotify/internal/history"
	"larknotify/internal/lark"
	"larknotify/internal/log"
	"larknotify/internal/relay"
)

const version = "1.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "send":
		os.Exit(runSend(args))
	case "serve":
		os.Exit(runServe(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "history":
		os.Exit(runHistoryNoun(args))
	case "version":
		fmt.Printf("larknotify version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`larknotify - Send signed notifications to a Lark/Feishu bot webhook

Usage:
  larknotify <command> [flags]

Commands:
  send          Send one notification and exit
  serve         Run the HTTP relay server
  config check  Validate config syntax and integrity
  config lock   Record config checksums for integrity checking
  history list  Show recent notification attempts
  version       Show version information
  help          Show this help message

Send flags:
  --webhook-url  Bot webhook URL (fallback: LARK_WEBHOOK_URL, config profile)
  --secret       Bot secret for signed messages (fallback: LARK_SECRET, config profile)
  --title        Message title
  --content      Message content
  --keywords     Comma-separated keywords to highlight
  --profile      Named config profile to use
  --timestamp    Fixed Unix timestamp for the signature (0 = now)
  --dry-run      Print the payload JSON instead of sending

All commands accept --config (fallback: LARKNOTIFY_CONFIG).
`)
}

// loadConfig resolves the config file path (flag, then LARKNOTIFY_CONFIG).
// With no path at all, defaults apply and flags/env must carry the inputs.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = os.Getenv("LARKNOTIFY_CONFIG")
	}
	if path == "" {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func fail(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "larknotify: "+format+"\n", args...)
	return 1
}

// --- send ---

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	webhookURL := fs.String("webhook-url", "", "bot webhook URL")
	secret := fs.String("secret", "", "bot secret for signed messages")
	title := fs.String("title", "", "message title")
	content := fs.String("content", "", "message content")
	keywords := fs.String("keywords", "", "comma-separated keywords to highlight")
	configPath := fs.String("config", "", "config file path")
	profileName := fs.String("profile", "", "named config profile")
	timestamp := fs.Int64("timestamp", 0, "fixed Unix timestamp for the signature (0 = now)")
	dryRun := fs.Bool("dry-run", false, "print the payload JSON instead of sending")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fail("%v", err)
	}
	log.Setup(cfg.LogLevel)
	logger := log.WithComponent("send")

	profile, profileUsed, err := cfg.ResolveProfile(*profileName)
	if err != nil {
		return fail("%v", err)
	}

	url := firstNonEmpty(*webhookURL, os.Getenv("LARK_WEBHOOK_URL"), profile.WebhookURL)
	if url == "" {
		return fail("missing webhook URL (set --webhook-url, LARK_WEBHOOK_URL, or a config profile)")
	}
	botSecret := firstNonEmpty(*secret, os.Getenv("LARK_SECRET"), profile.Secret)

	kws := lark.ParseKeywords(*keywords)
	if len(kws) == 0 {
		kws = profile.Keywords
	}

	var env *lark.SignedEnvelope
	if botSecret != "" {
		ts := *timestamp
		if ts == 0 {
			ts = time.Now().Unix()
		}
		e := lark.NewEnvelope(ts, botSecret)
		env = &e
	}

	msg := lark.BuildMessage(*title, *content, kws, env)

	if *dryRun {
		out, err := json.MarshalIndent(msg, "", "  ")
		if err != nil {
			return fail("marshal payload: %v", err)
		}
		fmt.Println(string(out))
		return 0
	}

	ctx := context.Background()
	sendErr := lark.NewClient(logger).Send(ctx, url, msg)

	recordAttempt(ctx, cfg, logger, history.Entry{
		Profile:      profileUsed,
		Title:        *title,
		KeywordCount: len(kws),
		Signed:       env != nil,
	}, sendErr)

	if sendErr != nil {
		return fail("%v", sendErr)
	}
	fmt.Println("notification sent")
	return 0
}

// recordAttempt writes a history entry when a history path is configured.
// History is best-effort: failures are logged, never fatal.
func recordAttempt(ctx context.Context, cfg *config.Config, logger *slog.Logger, entry history.Entry, sendErr error) {
	if cfg.History.Path == "" {
		return
	}

	entry.Status = history.StatusSent
	if sendErr != nil {
		entry.Status = history.StatusFailed
		entry.Error = sendErr.Error()
	}

	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		logger.Warn("history store unavailable", "path", cfg.History.Path, "error", err)
		return
	}
	defer store.Close()

	if err := store.Record(ctx, entry); err != nil {
		logger.Warn("failed to record send history", "error", err)
	}
}

// --- serve ---

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	listen := fs.String("listen", "", "listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fail("%v", err)
	}
	log.Setup(cfg.LogLevel)
	logger := log.WithComponent("serve")

	profile, profileUsed, err := cfg.ResolveProfile(cfg.Server.Profile)
	if err != nil {
		return fail("%v", err)
	}

	url := firstNonEmpty(os.Getenv("LARK_WEBHOOK_URL"), profile.WebhookURL)
	if url == "" {
		return fail("missing webhook URL (set LARK_WEBHOOK_URL or a config profile)")
	}
	botSecret := firstNonEmpty(os.Getenv("LARK_SECRET"), profile.Secret)

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(context.Background(), cfg.History.Path)
		if err != nil {
			return fail("open history store: %v", err)
		}
		defer store.Close()
	}

	client := lark.NewClient(logger)
	forwarder := relay.ForwarderFunc(func(ctx context.Context, n relay.Notification) error {
		kws := n.Keywords
		if len(kws) == 0 {
			kws = profile.Keywords
		}

		var env *lark.SignedEnvelope
		if botSecret != "" {
			e := lark.NewEnvelope(time.Now().Unix(), botSecret)
			env = &e
		}

		sendErr := client.Send(ctx, url, lark.BuildMessage(n.Title, n.Content, kws, env))

		if store != nil {
			entry := history.Entry{
				Profile:      profileUsed,
				Title:        n.Title,
				KeywordCount: len(kws),
				Signed:       env != nil,
				Status:       history.StatusSent,
			}
			if sendErr != nil {
				entry.Status = history.StatusFailed
				entry.Error = sendErr.Error()
			}
			if err := store.Record(ctx, entry); err != nil {
				logger.Warn("failed to record send history", "error", err)
			}
		}

		return sendErr
	})

	relayCfg := relay.Config{
		Listen:          firstNonEmpty(*listen, cfg.Server.Listen),
		Secret:          cfg.Server.Secret,
		SignatureHeader: cfg.Server.SignatureHeader,
		MaxBodySize:     cfg.Server.MaxBodySize,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := relay.New(relayCfg, forwarder, logger)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fail("%v", err)
	}
	return 0
}

// --- config ---

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: larknotify config <check|lock> [--config PATH]")
		return 1
	}
	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "lock":
		return runConfigLock(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	_, path, err := loadConfig(*configPath)
	if err != nil {
		return fail("%v", err)
	}
	if path == "" {
		return fail("no config file given (set --config or LARKNOTIFY_CONFIG)")
	}

	locked, err := config.VerifyIntegrity(path)
	if err != nil {
		return fail("%v", err)
	}

	fmt.Printf("config OK: %s\n", path)
	if locked {
		fmt.Println("integrity: checksums verified")
	} else {
		fmt.Println("integrity: not locked (run 'larknotify config lock' to enable)")
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	_, path, err := loadConfig(*configPath)
	if err != nil {
		return fail("%v", err)
	}
	if path == "" {
		return fail("no config file given (set --config or LARKNOTIFY_CONFIG)")
	}

	manifestPath, err := config.Lock(path)
	if err != nil {
		return fail("%v", err)
	}
	fmt.Printf("checksums written: %s\n", manifestPath)
	return 0
}

// --- history ---

func runHistoryNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: larknotify history list [--config PATH] [--limit N]")
		return 1
	}
	switch args[0] {
	case "list":
		return runHistoryList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", args[0])
		return 1
	}
}

func runHistoryList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path")
	limit := fs.Int("limit", 20, "maximum entries to show")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fail("%v", err)
	}
	if cfg.History.Path == "" {
		return fail("history is not configured (set history.path in the config)")
	}

	ctx := context.Background()
	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		return fail("%v", err)
	}
	defer store.Close()

	entries, err := store.Recent(ctx, *limit)
	if err != nil {
		return fail("%v", err)
	}
	if len(entries) == 0 {
		fmt.Println("no notifications recorded")
		return 0
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-6s  %-12s  %s",
			e.CreatedAt.Local().Format(time.RFC3339), e.Status, e.Profile, e.Title)
		if e.Error != "" {
			line += "  (" + e.Error + ")"
		}
		fmt.Println(line)
	}
	return 0
}
