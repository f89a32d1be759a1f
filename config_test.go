package worker_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	worker "github.com/toyota-m2k/android-worker"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
concurrency: 8
poll_interval: 250ms
codec: json
notification:
  channel_id: transfers
  channel_name: Transfers
  importance: 3
  id: 42
`)

	cfg, err := worker.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if cfg.Codec != "json" {
		t.Errorf("Codec = %q, want json", cfg.Codec)
	}
	// Untouched fields keep their defaults.
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 30s", cfg.ShutdownTimeout)
	}
	if cfg.Notification.ChannelID != "transfers" || cfg.Notification.ID != 42 {
		t.Errorf("Notification = %+v", cfg.Notification)
	}
}

func TestLoadConfig_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := worker.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := worker.DefaultConfig()
	if cfg != want {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadConfig_BadDuration(t *testing.T) {
	path := writeConfig(t, "poll_interval: soon\n")

	if _, err := worker.LoadConfig(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := worker.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("error = %v, want fs.ErrNotExist in chain", err)
	}
}
