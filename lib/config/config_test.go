// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Model.Capability != "prompt-api" {
		t.Errorf("expected capability=prompt-api, got %s", cfg.Model.Capability)
	}
	if cfg.Backend != BackendOnDevice {
		t.Errorf("expected backend=ondevice, got %s", cfg.Backend)
	}
	if cfg.Snapshots.Driver != "" {
		t.Errorf("expected snapshots disabled, got driver %s", cfg.Snapshots.Driver)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when LMSESSION_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "LMSESSION_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	path := writeConfig(t, "lmsession.yaml", `
environment: staging
root: /test/root
backend: remote
remote:
  provider: anthropic
  base_url: https://api.anthropic.com
  api_key_env: TEST_LMSESSION_KEY
  model: claude-test
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Remote.Model != "claude-test" {
		t.Errorf("expected remote.model=claude-test, got %s", cfg.Remote.Model)
	}
	// Values the file leaves out keep their defaults.
	if cfg.Model.MaxTokens != 4096 {
		t.Errorf("expected default max_tokens=4096, got %d", cfg.Model.MaxTokens)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "lmsession.jsonc", `{
  // Local runtime.
  "root": "/srv/lmsession",
  "ondevice": {
    "model_file": "model.gguf",
    "prompt_format": "text",
    "enabled_capabilities": ["prompt-api", "summarize",],
  },
  "snapshots": {"driver": "file", "compression": "lz4"},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.OnDevice.PromptFormat != "text" {
		t.Errorf("expected prompt_format=text, got %s", cfg.OnDevice.PromptFormat)
	}
	if len(cfg.OnDevice.EnabledCapabilities) != 2 {
		t.Errorf("expected two capabilities, got %v", cfg.OnDevice.EnabledCapabilities)
	}
	if cfg.OnDevice.ModelDir != "/srv/lmsession/models" {
		t.Errorf("expected model_dir expanded under root, got %s", cfg.OnDevice.ModelDir)
	}
	if cfg.Snapshots.Dir != "/srv/lmsession/snapshots" {
		t.Errorf("expected snapshots.dir expanded under root, got %s", cfg.Snapshots.Dir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFile_UnknownKeys(t *testing.T) {
	for _, name := range []string{"bad.yaml", "bad.json"} {
		content := "modle:\n  capability: write\n"
		if strings.HasSuffix(name, ".json") {
			content = `{"modle": {"capability": "write"}}`
		}
		if _, err := LoadFile(writeConfig(t, name, content)); err == nil {
			t.Errorf("LoadFile(%s) accepted an unknown key", name)
		}
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoadFile_EmptyKeepsDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "empty.yaml", ""))
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected level=info, got %s", cfg.Logging.Level)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "lmsession.yaml", `
environment: development
logging:
  level: info
development:
  logging:
    level: debug
  snapshots:
    driver: memory
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level=debug, got %s", cfg.Logging.Level)
	}
	if cfg.Snapshots.Driver != "memory" {
		t.Errorf("expected driver=memory, got %s", cfg.Snapshots.Driver)
	}
}

func TestProductionDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "lmsession.yaml", "environment: production\n"))
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected production format=json, got %s", cfg.Logging.Format)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("TEST_LMSESSION_VAR", "from-env")
	vars := map[string]string{"LMSESSION_ROOT": "/root"}

	tests := []struct {
		input string
		want  string
	}{
		{"${LMSESSION_ROOT}/models", "/root/models"},
		{"${TEST_LMSESSION_VAR}/x", "from-env/x"},
		{"${TEST_LMSESSION_UNSET:-fallback}", "fallback"},
		{"plain", "plain"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Environment = "testing"
	cfg.Logging.Level = "loud"
	cfg.Model.Capability = "translate"
	cfg.Model.MaxTopK = -1
	cfg.OnDevice.ModelFile = ""
	cfg.OnDevice.FailureWindow = "soon"
	cfg.Snapshots.Driver = "redis"
	cfg.Snapshots.Compression = "gzip"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want errors")
	}
	for _, fragment := range []string{
		"invalid environment",
		"logging.level",
		"model.capability",
		"model.max_top_k",
		"ondevice.model_file",
		"ondevice.failure_window",
		"snapshots.redis_addr",
		"snapshots.compression",
	} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("Validate() error does not mention %s:\n%v", fragment, err)
		}
	}
}

func TestValidate_RemoteBackend(t *testing.T) {
	cfg := Default()
	cfg.Backend = BackendRemote
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil for an empty remote section")
	}
	for _, fragment := range []string{"remote.provider", "remote.base_url", "remote.model"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("Validate() error does not mention %s", fragment)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	level, err := LoggingConfig{Level: "warn"}.SlogLevel()
	if err != nil || level != slog.LevelWarn {
		t.Errorf("SlogLevel() = %v, %v; want WARN", level, err)
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("TEST_LMSESSION_KEY", "sk-test")
	if key, err := (RemoteConfig{APIKeyEnv: "TEST_LMSESSION_KEY"}).APIKey(); err != nil || key != "sk-test" {
		t.Errorf("APIKey() = %q, %v", key, err)
	}
	if key, err := (RemoteConfig{}).APIKey(); err != nil || key != "" {
		t.Errorf("APIKey() without env = %q, %v", key, err)
	}
	if _, err := (RemoteConfig{APIKeyEnv: "TEST_LMSESSION_UNSET_KEY"}).APIKey(); err == nil {
		t.Error("APIKey() with an unset variable succeeded")
	}
}

func TestParseDuration(t *testing.T) {
	if got, err := ParseDuration("x", "90m"); err != nil || got != 90*time.Minute {
		t.Errorf("ParseDuration(90m) = %v, %v", got, err)
	}
	for _, bad := range []string{"", "0s", "-1h", "soon"} {
		if _, err := ParseDuration("x", bad); err == nil {
			t.Errorf("ParseDuration(%q) succeeded", bad)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Root = filepath.Join(root, "state")
	cfg.OnDevice.ModelDir = filepath.Join(root, "state", "models")
	cfg.Snapshots.Driver = "file"
	cfg.Snapshots.Dir = filepath.Join(root, "snapshots")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths() failed: %v", err)
	}
	for _, path := range []string{cfg.Root, cfg.OnDevice.ModelDir, cfg.Snapshots.Dir} {
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			t.Errorf("%s not created", path)
		}
	}
}
