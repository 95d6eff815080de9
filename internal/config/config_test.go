package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// validJSON returns a minimal valid configuration JSON string.
func validJSON() string {
	return `{
		"db_path": "/tmp/foundry.db",
		"artifacts_dir": "/tmp/artifacts",
		"policy_path": "/tmp/policy.yaml"
	}`
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "config.json")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validJSON())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/foundry.db" {
		t.Errorf("DBPath = %q, want /tmp/foundry.db", cfg.DBPath)
	}
	if cfg.ArtifactsDir != "/tmp/artifacts" {
		t.Errorf("ArtifactsDir = %q, want /tmp/artifacts", cfg.ArtifactsDir)
	}
	if cfg.PolicyPath != "/tmp/policy.yaml" {
		t.Errorf("PolicyPath = %q, want /tmp/policy.yaml", cfg.PolicyPath)
	}
	if cfg.RelaxedApproval {
		t.Error("RelaxedApproval defaults to true; want false")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{not valid json}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestLoad_MissingDBPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"artifacts_dir": "/tmp/artifacts"
	}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing db_path, got nil")
	}
	foundryErr, ok := err.(*domain.FoundryError)
	if !ok {
		t.Fatalf("expected FoundryError, got %T", err)
	}
	if foundryErr.Code != domain.ErrConfigInvalid.Code {
		t.Errorf("Code = %d, want %d", foundryErr.Code, domain.ErrConfigInvalid.Code)
	}
}

func TestLoad_MissingArtifactsDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"db_path": "/tmp/foundry.db"
	}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing artifacts_dir, got nil")
	}
	foundryErr, ok := err.(*domain.FoundryError)
	if !ok {
		t.Fatalf("expected FoundryError, got %T", err)
	}
	if foundryErr.Code != domain.ErrConfigInvalid.Code {
		t.Errorf("Code = %d, want %d", foundryErr.Code, domain.ErrConfigInvalid.Code)
	}
}

func TestLoad_NegativeTimeout(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"db_path": "/tmp/foundry.db",
		"artifacts_dir": "/tmp/artifacts",
		"exec_timeout_sec": -5
	}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for negative timeout, got nil")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validJSON())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Interpreter != "python3" {
		t.Errorf("Interpreter = %q, want python3", cfg.Interpreter)
	}
	if cfg.SelfTestTimeoutSec != 30 {
		t.Errorf("SelfTestTimeoutSec = %d, want 30", cfg.SelfTestTimeoutSec)
	}
	if cfg.ExecTimeoutSec != 30 {
		t.Errorf("ExecTimeoutSec = %d, want 30", cfg.ExecTimeoutSec)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.BackoffUnit() != time.Second {
		t.Errorf("BackoffUnit = %v, want 1s", cfg.BackoffUnit())
	}
	if cfg.ApprovalWait() != time.Minute {
		t.Errorf("ApprovalWait = %v, want 1m", cfg.ApprovalWait())
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ExecTimeout() != 30*time.Second {
		t.Errorf("ExecTimeout = %v, want 30s", cfg.ExecTimeout())
	}
}
