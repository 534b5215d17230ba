package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": 8092}}`), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reloaded := make(chan *Config, 1)
	go func() {
		_ = w.Watch(ctx, func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher time to register before mutating the file.
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"server": {"port": 9593}}`), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Server.Port != 9593 {
			t.Errorf("expected reloaded port 9593, got %d", cfg.Server.Port)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherSkipsInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": 8092}}`), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reloaded := make(chan *Config, 1)
	go func() {
		_ = w.Watch(ctx, func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	time.Sleep(200 * time.Millisecond)

	// Invalid port must not reach the callback.
	if err := os.WriteFile(path, []byte(`{"server": {"port": 999999}}`), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid configuration was delivered: %+v", cfg.Server)
	case <-ctx.Done():
		// No reload delivered for the invalid file.
	}
}

func TestNewWatcherRequiresPath(t *testing.T) {
	if _, err := NewWatcher("", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}
