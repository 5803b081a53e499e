package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeTempConfig(t, "replay:\n  initial_cash: 5000\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Replay.InitialCash != 5000 {
		t.Errorf("Replay.InitialCash = %v, want 5000", cfg.Replay.InitialCash)
	}
	if !cfg.Broker.LiquidityCap {
		t.Error("Broker.LiquidityCap default = false, want true")
	}
	if cfg.Broker.EMADecay != 0.1 {
		t.Errorf("Broker.EMADecay default = %v, want 0.1", cfg.Broker.EMADecay)
	}
}

func TestLoad_RejectsInvalidEMADecay(t *testing.T) {
	t.Parallel()

	path := writeTempConfig(t, "replay:\n  initial_cash: 1000\nbroker:\n  ema_decay: 1.5\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() with ema_decay=1.5: error = nil, want validation error")
	}
}

func TestLoad_RejectsNonPositiveInitialCash(t *testing.T) {
	t.Parallel()

	path := writeTempConfig(t, "replay:\n  initial_cash: 0\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() with initial_cash=0: error = nil, want validation error")
	}
}
