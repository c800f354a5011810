package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: DEBUG
default_profile: ops
profiles:
  ops:
    webhook_url: https://open.larksuite.com/open-apis/bot/v2/hook/abc
    secret: topsecret
    keywords: [disk, error]
history:
  path: /tmp/larknotify/history.db
server:
  listen: 0.0.0.0:9090
  profile: ops
  secret: inbound
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "ops", cfg.DefaultProfile)
	assert.Equal(t, "topsecret", cfg.Profiles["ops"].Secret)
	assert.Equal(t, []string{"disk", "error"}, cfg.Profiles["ops"].Keywords)
	assert.Equal(t, "/tmp/larknotify/history.db", cfg.History.Path)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Listen)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
profiles:
  ops:
    webhook_url: https://example.com/hook
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultSignatureHeader, cfg.Server.SignatureHeader)
	assert.Equal(t, int64(DefaultMaxBodySize), cfg.Server.MaxBodySize)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_LARK_SECRET", "from-env")

	path := writeConfig(t, `
profiles:
  ops:
    webhook_url: https://example.com/hook
    secret: ${TEST_LARK_SECRET}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Profiles["ops"].Secret)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "profile without webhook_url",
			content: `
profiles:
  ops:
    secret: s
`,
			wantErr: "webhook_url is required",
		},
		{
			name: "unknown default_profile",
			content: `
default_profile: missing
profiles:
  ops:
    webhook_url: https://example.com/hook
`,
			wantErr: "default_profile",
		},
		{
			name: "unknown server profile",
			content: `
profiles:
  ops:
    webhook_url: https://example.com/hook
server:
  profile: missing
`,
			wantErr: "server.profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestResolveProfile(t *testing.T) {
	cfg := &Config{
		DefaultProfile: "ops",
		Profiles: map[string]Profile{
			"ops":    {WebhookURL: "https://example.com/ops"},
			"oncall": {WebhookURL: "https://example.com/oncall"},
		},
	}

	profile, name, err := cfg.ResolveProfile("")
	require.NoError(t, err)
	assert.Equal(t, "ops", name)
	assert.Equal(t, "https://example.com/ops", profile.WebhookURL)

	profile, name, err = cfg.ResolveProfile("oncall")
	require.NoError(t, err)
	assert.Equal(t, "oncall", name)
	assert.Equal(t, "https://example.com/oncall", profile.WebhookURL)

	_, _, err = cfg.ResolveProfile("missing")
	require.Error(t, err)

	// No profiles at all: resolves to a zero profile, caller falls back to
	// flags and environment.
	profile, name, err = Default().ResolveProfile("")
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Empty(t, profile.WebhookURL)
}
