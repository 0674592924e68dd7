// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8787"

worker:
  command: "python3"
  args: ["-m", "orchestrator.session_runner"]

sessions:
  readiness_timeout: "3s"
  idle_ttl: "10m"
  reap_interval: "30s"

archive:
  enabled: true
  path: "./archive.db"

policy:
  rules_path: "./policy.toml"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8787" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8787")
	}
	if cfg.Worker.Command != "python3" {
		t.Errorf("Worker.Command = %q, want %q", cfg.Worker.Command, "python3")
	}
	if len(cfg.Worker.Args) != 2 {
		t.Errorf("Worker.Args len = %d, want 2", len(cfg.Worker.Args))
	}
	if cfg.Sessions.ReadinessTimeout != 3*time.Second {
		t.Errorf("Sessions.ReadinessTimeout = %v, want %v", cfg.Sessions.ReadinessTimeout, 3*time.Second)
	}
	if cfg.Sessions.IdleTTL != 10*time.Minute {
		t.Errorf("Sessions.IdleTTL = %v, want %v", cfg.Sessions.IdleTTL, 10*time.Minute)
	}
	if cfg.Sessions.ReapInterval != 30*time.Second {
		t.Errorf("Sessions.ReapInterval = %v, want %v", cfg.Sessions.ReapInterval, 30*time.Second)
	}
	if !cfg.Archive.Enabled {
		t.Error("Archive.Enabled = false, want true")
	}
	if cfg.Policy.RulesPath != "./policy.toml" {
		t.Errorf("Policy.RulesPath = %q, want %q", cfg.Policy.RulesPath, "./policy.toml")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_WORKER_COMMAND", "/opt/orchestra/runner")

	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8787"

worker:
  command: "${TEST_WORKER_COMMAND}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Worker.Command != "/opt/orchestra/runner" {
		t.Errorf("Worker.Command = %q, want %q", cfg.Worker.Command, "/opt/orchestra/runner")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8787"

worker:
  command: "python3"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sessions.ReadinessTimeout != DefaultReadinessTimeout {
		t.Errorf("ReadinessTimeout = %v, want default %v", cfg.Sessions.ReadinessTimeout, DefaultReadinessTimeout)
	}
	if cfg.Sessions.IdleTTL != DefaultIdleTTL {
		t.Errorf("IdleTTL = %v, want default %v", cfg.Sessions.IdleTTL, DefaultIdleTTL)
	}
	if cfg.Sessions.ReapInterval != DefaultReapInterval {
		t.Errorf("ReapInterval = %v, want default %v", cfg.Sessions.ReapInterval, DefaultReapInterval)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8787"

worker:
  command: "python3"

sessions:
  readiness_timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "readiness_timeout") {
		t.Errorf("error %q should mention readiness_timeout", err)
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing http_addr",
			content: "worker:\n  command: \"python3\"\n",
			wantErr: "server.http_addr",
		},
		{
			name:    "missing worker command",
			content: "server:\n  http_addr: \":8787\"\n",
			wantErr: "worker.command",
		},
		{
			name:    "archive enabled without path",
			content: "server:\n  http_addr: \":8787\"\nworker:\n  command: \"python3\"\narchive:\n  enabled: true\n",
			wantErr: "archive.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
