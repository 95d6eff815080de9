package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// Config holds the foundry's runtime configuration.
type Config struct {
	DBPath       string `json:"db_path"`
	ArtifactsDir string `json:"artifacts_dir"`
	WorkDir      string `json:"work_dir"`
	PolicyPath   string `json:"policy_path"`

	Interpreter     string   `json:"interpreter"`
	InterpreterArgs []string `json:"interpreter_args"`

	SelfTestTimeoutSec int `json:"self_test_timeout_sec"`
	ExecTimeoutSec     int `json:"exec_timeout_sec"`

	MaxAttempts    int `json:"max_attempts"`
	BackoffUnitMS  int `json:"backoff_unit_ms"`
	ApprovalWaitMS int `json:"approval_wait_ms"`

	// RelaxedApproval downgrades Approval-tier gates to logged warnings.
	// Leave false in production.
	RelaxedApproval bool `json:"relaxed_approval"`
}

// Load reads a JSON config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		DBPath:       "foundry.db",
		ArtifactsDir: "artifacts",
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Interpreter == "" {
		c.Interpreter = "python3"
	}
	if c.SelfTestTimeoutSec == 0 {
		c.SelfTestTimeoutSec = 30
	}
	if c.ExecTimeoutSec == 0 {
		c.ExecTimeoutSec = 30
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffUnitMS == 0 {
		c.BackoffUnitMS = 1000
	}
	if c.ApprovalWaitMS == 0 {
		c.ApprovalWaitMS = 60_000
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.ArtifactsDir == "" {
		problems = append(problems, "artifacts_dir is required")
	}
	if c.MaxAttempts < 1 {
		problems = append(problems, "max_attempts must be at least 1")
	}
	if c.SelfTestTimeoutSec < 0 || c.ExecTimeoutSec < 0 {
		problems = append(problems, "timeouts must not be negative")
	}

	if len(problems) > 0 {
		return &domain.FoundryError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// SelfTestTimeout returns the self-test stage deadline.
func (c *Config) SelfTestTimeout() time.Duration {
	return time.Duration(c.SelfTestTimeoutSec) * time.Second
}

// ExecTimeout returns the per-run sandbox deadline.
func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutSec) * time.Second
}

// BackoffUnit returns the refiner's backoff time unit.
func (c *Config) BackoffUnit() time.Duration {
	return time.Duration(c.BackoffUnitMS) * time.Millisecond
}

// ApprovalWait returns how long an Approval-tier gate blocks before
// defaulting to denial.
func (c *Config) ApprovalWait() time.Duration {
	return time.Duration(c.ApprovalWaitMS) * time.Millisecond
}
