package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnvHelpersFallBackToDefault(t *testing.T) {
	if got := envStr("PERPFLOW_UNSET_KEY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := envInt("PERPFLOW_UNSET_KEY", 7); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := envBool("PERPFLOW_UNSET_KEY", true); got != true {
		t.Fatalf("expected true, got %v", got)
	}
}

func TestEnvHelpersParseSetValues(t *testing.T) {
	os.Setenv("PERPFLOW_TEST_INT64", "12345")
	defer os.Unsetenv("PERPFLOW_TEST_INT64")
	if got := envInt64("PERPFLOW_TEST_INT64", 0); got != 12345 {
		t.Fatalf("expected 12345, got %d", got)
	}

	os.Setenv("PERPFLOW_TEST_FLOAT", "40.5")
	defer os.Unsetenv("PERPFLOW_TEST_FLOAT")
	if got := envFloat("PERPFLOW_TEST_FLOAT", 0); got != 40.5 {
		t.Fatalf("expected 40.5, got %v", got)
	}
}

func TestLoadYAMLOverlayAbsentFileIsNotAnError(t *testing.T) {
	ov, err := loadYAMLOverlay(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected no error for a missing overlay file, got %v", err)
	}
	if len(ov.Symbols) != 0 {
		t.Fatalf("expected an empty overlay, got %+v", ov)
	}
}

func TestLoadYAMLOverlayAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perpflow.yaml")
	content := "symbols:\n  - BTCUSDT\n  - ETHUSDT\ndryRunTakeProfitBps: 55.5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing overlay file: %v", err)
	}

	ov, err := loadYAMLOverlay(path)
	if err != nil {
		t.Fatalf("loadYAMLOverlay: %v", err)
	}
	if len(ov.Symbols) != 2 || ov.Symbols[0] != "BTCUSDT" {
		t.Fatalf("unexpected symbols: %+v", ov.Symbols)
	}

	c := &Config{DryRunTakeProfitBps: 40}
	applyYAMLOverlay(c, ov)
	if c.DryRunTakeProfitBps != 55.5 {
		t.Fatalf("expected overlay to override DryRunTakeProfitBps, got %v", c.DryRunTakeProfitBps)
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Field: "API_KEY_SECRET", Msg: "required for bearer authentication"}
	if err.Error() == "" {
		t.Fatal("expected a non-empty error message")
	}
}
