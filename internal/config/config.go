// Package config defines the orchestrator's declarative configuration schema
// and the helpers to load and validate it. Every tunable the components in
// this repo read is declared here and read once at construction time; no
// component performs a runtime key-value lookup in a hot path.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when the config file does not exist at the given path.
var ErrNotFound = errors.New("orchestrator config not found")

// Config is the top-level declarative document loaded from the orchestrator
// YAML config file.
type Config struct {
	Delivery      DeliveryConfig      `yaml:"delivery"`
	Planning      PlanningConfig      `yaml:"planning"`
	Executor      ExecutorConfig      `yaml:"executor"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	ReasoningTrace ReasoningTraceConfig `yaml:"reasoning_trace"`
	Models        ModelsConfig        `yaml:"models"`
	Screenshots   ScreenshotsConfig   `yaml:"screenshots"`
	Session       SessionConfig       `yaml:"session"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

// DeliveryConfig controls delivery-intent detection and enforcement.
type DeliveryConfig struct {
	IntentVerbs  []string         `yaml:"intent_verbs"`
	RequiredTool string           `yaml:"required_tool"`
	Validation   DeliveryValidate `yaml:"validation"`
}

// DeliveryValidate controls how the Plan Validator reacts to missing delivery steps.
type DeliveryValidate struct {
	RejectMissingTool bool `yaml:"reject_missing_tool"`
}

// PlanningConfig bounds the Planner/Validator repair loop.
type PlanningConfig struct {
	MaxRepairRounds int `yaml:"max_repair_rounds"`
	MaxReplanRounds int `yaml:"max_replan_rounds"`
}

// ExecutorConfig bounds per-step retry and default deadlines.
type ExecutorConfig struct {
	PerStepRetries    int `yaml:"per_step_retries"`
	DefaultDeadlineMs int `yaml:"default_deadline_ms"`
}

// SandboxConfig lists the roots file-touching tools must resolve within.
type SandboxConfig struct {
	Roots []string `yaml:"roots"`
}

// ReasoningTraceConfig toggles the optional reasoning trace.
type ReasoningTraceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RateLimitConfig bounds the adaptive token-bucket limiter placed in front of
// the shared model.Client used by the Planner and Critic. InitialTPM and
// MaxTPM are tokens per minute; a zero InitialTPM disables rate limiting.
type RateLimitConfig struct {
	InitialTPM float64 `yaml:"initial_tpm"`
	MaxTPM     float64 `yaml:"max_tpm"`
}

// ModelsConfig configures per-model temperature overrides and per-agent defaults.
type ModelsConfig struct {
	Constraints   []ModelConstraint          `yaml:"constraints"`
	AgentDefaults map[string]AgentModelDefault `yaml:"agent_defaults"`
}

// ModelConstraint overrides temperature for model names matching Pattern.
type ModelConstraint struct {
	Pattern     string  `yaml:"pattern"`
	Temperature float64 `yaml:"temperature"`
	Reason      string  `yaml:"reason"`

	compiled *regexp.Regexp
}

// Compile compiles and caches the constraint's regular expression.
func (c *ModelConstraint) Compile() error {
	if c.compiled != nil {
		return nil
	}
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return fmt.Errorf("model constraint pattern %q: %w", c.Pattern, err)
	}
	c.compiled = re
	return nil
}

// Matches reports whether the constraint's pattern matches the given model name.
// Compile must be called first; an uncompiled constraint never matches.
func (c *ModelConstraint) Matches(model string) bool {
	if c.compiled == nil {
		return false
	}
	return c.compiled.MatchString(model)
}

// AgentModelDefault is the default temperature for a named agent/component.
type AgentModelDefault struct {
	Temperature float64 `yaml:"temperature"`
}

// ScreenshotsConfig configures the base directory for screenshot artifacts.
type ScreenshotsConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// SessionConfig selects the Session/Task Manager and Session Memory
// backends.
type SessionConfig struct {
	// Store selects the Session Memory persistence backend: "file" (default)
	// or "mongo".
	Store string `yaml:"store"`
	// DistributedLock, when true, backs the Session/Task Manager's
	// at-most-one-task invariant with Redis instead of an in-process mutex.
	DistributedLock bool `yaml:"distributed_lock"`
}

// Load reads and parses a YAML config document from path, applies defaults,
// and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Planning.MaxRepairRounds == 0 {
		c.Planning.MaxRepairRounds = 2
	}
	if c.Planning.MaxReplanRounds == 0 {
		c.Planning.MaxReplanRounds = 2
	}
	if c.Executor.DefaultDeadlineMs == 0 {
		c.Executor.DefaultDeadlineMs = 30_000
	}
	if c.Session.Store == "" {
		c.Session.Store = "file"
	}
}

// Validate checks the config for internally-consistent values and compiles
// model constraint patterns so Matches never observes a half-initialized
// constraint.
func (c *Config) Validate() error {
	if c.Delivery.RequiredTool == "" && len(c.Delivery.IntentVerbs) > 0 {
		return errors.New("delivery.required_tool is required when delivery.intent_verbs is set")
	}
	if c.Planning.MaxRepairRounds < 0 || c.Planning.MaxReplanRounds < 0 {
		return errors.New("planning rounds must be non-negative")
	}
	if c.Executor.PerStepRetries < 0 {
		return errors.New("executor.per_step_retries must be non-negative")
	}
	if c.Session.Store != "file" && c.Session.Store != "mongo" {
		return fmt.Errorf("session.store must be \"file\" or \"mongo\", got %q", c.Session.Store)
	}
	for i := range c.Models.Constraints {
		if err := c.Models.Constraints[i].Compile(); err != nil {
			return err
		}
	}
	return nil
}

// TemperatureFor resolves the effective temperature for a model name given
// the agent that is calling it, applying models.constraints (first match
// wins) over models.agent_defaults, falling back to the provided base value.
func (c *Config) TemperatureFor(agent, model string, base float64) (float64, string) {
	for i := range c.Models.Constraints {
		if c.Models.Constraints[i].Matches(model) {
			return c.Models.Constraints[i].Temperature, c.Models.Constraints[i].Reason
		}
	}
	if d, ok := c.Models.AgentDefaults[agent]; ok {
		return d.Temperature, "agent_default"
	}
	return base, ""
}
