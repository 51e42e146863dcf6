package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/config"
	"github.com/TheNickoos/GilsTracker/internal/session"
)

func TestBaseURL(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 8787, "http://127.0.0.1:8787"},
		{"0.0.0.0", 9000, "http://127.0.0.1:9000"},
		{"", 1, "http://127.0.0.1:1"},
		{"::1", 8787, "http://[::1]:8787"},
	}
	for _, tt := range tests {
		if got := baseURL(config.ServerConfig{Host: tt.host, Port: tt.port}); got != tt.want {
			t.Errorf("baseURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, session.Summary{Status: session.LoggedOut}, false)
	if !strings.Contains(buf.String(), "Not logged in.") {
		t.Errorf("logged out output = %q", buf.String())
	}

	buf.Reset()
	s := session.Summary{Status: session.Tracking, Tracking: true, LoggedIn: true, Net: 2500, Gained: 3000, Spent: 500, PerHour: 1000}
	printSummary(&buf, s, false)
	out := buf.String()
	for _, want := range []string{"Gil +2.5k | 1k/h", "Net: +2,500", cliResetHint} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printSummary(&buf, s, true)
	if !strings.Contains(buf.String(), `"status": "tracking"`) {
		t.Errorf("json output = %s", buf.String())
	}
}

func TestLoadServeConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gilstracker", "config.yaml")
	cfg, err := loadServeConfig(path, serveOptions{mock: true, port: 9999}, true)
	if err != nil {
		t.Fatalf("loadServeConfig: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
	if cfg.Source.Mode != config.ModeMock || cfg.Server.Port != 9999 || cfg.Log.Level != "debug" {
		t.Errorf("flags not applied: %+v", cfg)
	}

	saved, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Source.Mode != config.ModeFeed {
		t.Error("flag overrides must not be persisted")
	}
}

func TestServeMockEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := config.Default()
	cfg.Server.Port = 18787
	cfg.Server.AuthToken = "test-token"
	cfg.Source.MockStep = 10 * time.Millisecond
	cfg.Tracker.PollInterval = 50 * time.Millisecond
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, path, serveOptions{mock: true}, false) }()

	var out bytes.Buffer
	deadline := time.Now().Add(5 * time.Second)
	for {
		root := newRootCmd()
		root.SetArgs([]string{"status", "--config", path, "--json"})
		out.Reset()
		root.SetOut(&out)
		root.SetErr(&out)
		if err := root.Execute(); err == nil && strings.Contains(out.String(), `"status": "tracking"`) {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("daemon never reported a tracking session; last output:\n%s", out.String())
		}
		time.Sleep(50 * time.Millisecond)
	}

	root := newRootCmd()
	root.SetArgs([]string{"reset", "--config", path})
	out.Reset()
	root.SetOut(&out)
	if err := root.Execute(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out.String(), "Session reset.") {
		t.Errorf("reset output = %q", out.String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not stop")
	}
}

func TestTokenCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"token", "--write", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}
	token := strings.TrimSpace(out.String())
	if len(token) != 32 {
		t.Errorf("token = %q, want 32 hex chars", token)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.AuthToken != token {
		t.Error("token not written to config")
	}
}
