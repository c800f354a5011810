package lark

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientSend_Success(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"msg":"success"}`))
	}))
	defer srv.Close()

	msg := BuildMessage("Alert", "disk usage high", nil, nil)
	if err := NewClient(discardLogger()).Send(context.Background(), srv.URL, msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotContentType != "application/json" {
		t.Fatalf("Content-Type = %q", gotContentType)
	}
	var sent map[string]any
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("posted body is not JSON: %v", err)
	}
	if sent["msg_type"] != "post" {
		t.Fatalf("posted msg_type = %v", sent["msg_type"])
	}
}

func TestClientSend_ApplicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":19021,"msg":"invalid sign"}`))
	}))
	defer srv.Close()

	err := NewClient(discardLogger()).Send(context.Background(), srv.URL, BuildMessage("t", "c", nil, nil))
	if err == nil {
		t.Fatal("Send() succeeded on application error")
	}
	if !strings.Contains(err.Error(), "invalid sign") {
		t.Fatalf("error %q does not surface the vendor message", err)
	}
}

func TestClientSend_NewStatusEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"StatusCode":19001,"StatusMessage":"param invalid"}`))
	}))
	defer srv.Close()

	err := NewClient(discardLogger()).Send(context.Background(), srv.URL, BuildMessage("t", "c", nil, nil))
	if err == nil || !strings.Contains(err.Error(), "param invalid") {
		t.Fatalf("Send() error = %v, want StatusMessage surfaced", err)
	}
}

func TestClientSend_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(discardLogger()).Send(context.Background(), srv.URL, BuildMessage("t", "c", nil, nil))
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("Send() error = %v, want HTTP 502 surfaced", err)
	}
}

func TestClientSend_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	err := NewClient(discardLogger()).Send(context.Background(), srv.URL, BuildMessage("t", "c", nil, nil))
	if err == nil {
		t.Fatal("Send() succeeded against closed server")
	}
}
