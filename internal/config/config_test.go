package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml", "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.AgentCount != 12 || cfg.HorizonSeconds != 30 || cfg.Seed != 42 {
		t.Errorf("unexpected simulation values: %+v", cfg)
	}
	if cfg.Transport.Kind != "channel" || cfg.Transport.Capacity != 64 {
		t.Errorf("unexpected transport: %+v", cfg.Transport)
	}
	if cfg.Transport.PublishTimeout != 20*time.Millisecond {
		t.Errorf("publish_timeout=%s, want 20ms", cfg.Transport.PublishTimeout)
	}
	// fields absent from the file keep their defaults
	if cfg.Server.Listen != ":8000" {
		t.Errorf("expected default listen address, got %q", cfg.Server.Listen)
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	_, err := Load("testdata/invalid.yaml", "")
	if err == nil {
		t.Fatalf("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfig_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yaml")
	if err := os.WriteFile(path, []byte("agent_count: 3\nsoldiers: 4\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateWithCue(path, ""); err == nil {
		t.Fatalf("expected closed schema to reject unknown field")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.AgentCount != 100 || cfg.Transport.Topic != "soldier_telemetry" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TRANSPORT_ADDR":  "redis:6379",
		"TOPIC":           "alt_topic",
		"AGENT_COUNT":     "7",
		"HORIZON_SECONDS": "15",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Transport.Addr != "redis:6379" || cfg.Transport.Topic != "alt_topic" {
		t.Errorf("transport overrides not applied: %+v", cfg.Transport)
	}
	if cfg.AgentCount != 7 || cfg.HorizonSeconds != 15 {
		t.Errorf("simulation overrides not applied: %+v", cfg)
	}
	if cfg.Transport.Kind != "loopback" {
		t.Errorf("unrelated field changed: %q", cfg.Transport.Kind)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "AGENT_COUNT" {
			return "many"
		}
		return ""
	})
	if err == nil {
		t.Fatalf("expected error for non-numeric AGENT_COUNT")
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("HORIZON_SECONDS", "5")
	cfg, err := Load("testdata/valid.yaml", "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.HorizonSeconds != 5 {
		t.Errorf("horizon=%d, want 5", cfg.HorizonSeconds)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Transport.Kind = "kafka"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown transport")
	}
	cfg = Default()
	cfg.TimestampSource = "lunar"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown timestamp source")
	}
}
