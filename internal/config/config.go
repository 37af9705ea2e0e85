package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure so callers can tell configuration faults apart from I/O.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is the prefix for environment overrides (CONTRACTFIX_AGENT_FAST=true).
const EnvPrefix = "CONTRACTFIX"

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version   string                    `mapstructure:"version" yaml:"version,omitempty"`
	Project   ProjectConfig             `mapstructure:"project" yaml:"project"`
	Test      TestConfig                `mapstructure:"test" yaml:"test"`
	Limits    LimitsConfig              `mapstructure:"limits" yaml:"limits"`
	Agent     AgentConfig               `mapstructure:"agent" yaml:"agent"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models" yaml:"models"`
	Strategy  StrategyConfig            `mapstructure:"strategy" yaml:"strategy"`
	Artifacts ArtifactsConfig           `mapstructure:"artifacts" yaml:"artifacts"`
	Apply     ApplyConfig               `mapstructure:"apply" yaml:"apply"`
	Logging   LoggingConfig             `mapstructure:"logging" yaml:"logging"`
}

// ProjectConfig locates the service under test and its contract artifacts.
type ProjectConfig struct {
	RepoRoot        string   `mapstructure:"repo_root" yaml:"repo_root"`
	SurefireDir     string   `mapstructure:"surefire_dir" yaml:"surefire_dir"`         // relative to repo_root
	SpecmaticLog    string   `mapstructure:"specmatic_log" yaml:"specmatic_log"`       // relative to the parent of surefire_dir
	SpecmaticConfig string   `mapstructure:"specmatic_config" yaml:"specmatic_config"` // relative to repo_root
	SpecKeyword     string   `mapstructure:"spec_keyword" yaml:"spec_keyword"`
	CodeRoots       []string `mapstructure:"code_roots" yaml:"code_roots"`
}

// TestConfig describes the contract test command.
type TestConfig struct {
	Command        []string `mapstructure:"command" yaml:"command"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // 0 = wait indefinitely
}

// LimitsConfig bounds context collection.
type LimitsConfig struct {
	FilesPerSection int `mapstructure:"files_per_section" yaml:"files_per_section"`
	MaxContextChars int `mapstructure:"max_context_chars" yaml:"max_context_chars"`
	ConfigChars     int `mapstructure:"config_chars" yaml:"config_chars"`
	IndexFiles      int `mapstructure:"index_files" yaml:"index_files"`
	CacheEntries    int `mapstructure:"cache_entries" yaml:"cache_entries"`
}

// AgentConfig controls prompt shaping and completion behaviour.
type AgentConfig struct {
	Fast         bool           `mapstructure:"fast" yaml:"fast"`
	FastLimits   map[string]int `mapstructure:"fast_limits" yaml:"fast_limits"`
	RequireDiffs bool           `mapstructure:"require_diffs" yaml:"require_diffs"`
	Verbose      bool           `mapstructure:"verbose" yaml:"verbose"`
	Stream       bool           `mapstructure:"stream" yaml:"stream"`
	Temperature  float64        `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens    int            `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ProviderConfig represents a model backend such as Ollama, an OpenAI-compatible gateway, or Gemini.
type ProviderConfig struct {
	Type      string        `mapstructure:"type" yaml:"type"` // ollama, openai, openrouter, vllm, lmstudio, custom, gemini
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
	MaxTokens int           `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
	// Temperature overrides agent.temperature when set; an explicit 0 is kept.
	Temperature *float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`
	MaxTokens   int      `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
	Default     bool     `mapstructure:"default" yaml:"default,omitempty"`
}

// ArtifactsConfig controls where run outputs land.
type ArtifactsConfig struct {
	OutputDir   string   `mapstructure:"output_dir" yaml:"output_dir"` // relative to repo_root
	MetricsFile string   `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
	S3          S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config configures the optional object-store mirror of the artifact directory.
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Region    string `mapstructure:"region" yaml:"region,omitempty"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// ApplyConfig configures the patch applier.
type ApplyConfig struct {
	Branch        string `mapstructure:"branch" yaml:"branch"`
	CommitMessage string `mapstructure:"commit_message" yaml:"commit_message"`
	LedgerDir     string `mapstructure:"ledger_dir" yaml:"ledger_dir"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// Load reads configuration from path (or contractfix.yaml in . and configs/ when empty).
// Precedence: overrides > CONTRACTFIX_* environment > file > defaults.
func Load(path string, overrides map[string]interface{}) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("contractfix")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for key, val := range overrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyBackendDefaults(&cfg)
	cfg.Test.Command = normalizeCommand(cfg.Test.Command)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Project.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve repo_root: %w", err)
	}
	cfg.Project.RepoRoot = root

	return &cfg, nil
}

// setDefaults populates defaults for every scalar key so env overrides are visible to Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("project.repo_root", ".")
	v.SetDefault("project.surefire_dir", "target/surefire-reports")
	v.SetDefault("project.specmatic_log", "specmatic.log")
	v.SetDefault("project.specmatic_config", "specmatic.yaml")
	v.SetDefault("project.spec_keyword", "openapi")
	v.SetDefault("project.code_roots", []string{"src/main/java", "src/main/resources", "pom.xml"})

	v.SetDefault("test.command", []string{"mvn", "-q", "test"})
	v.SetDefault("test.timeout_seconds", 0)

	v.SetDefault("limits.files_per_section", 60)
	v.SetDefault("limits.max_context_chars", 120000)
	v.SetDefault("limits.config_chars", 50000)
	v.SetDefault("limits.index_files", 200)
	v.SetDefault("limits.cache_entries", 512)

	v.SetDefault("agent.fast", false)
	v.SetDefault("agent.fast_limits", DefaultFastLimits())
	v.SetDefault("agent.require_diffs", false)
	v.SetDefault("agent.verbose", false)
	v.SetDefault("agent.stream", false)
	v.SetDefault("agent.temperature", 0.2)
	v.SetDefault("agent.max_tokens", 0)

	v.SetDefault("strategy.default_model", "")
	v.SetDefault("strategy.planner_model", "")
	v.SetDefault("strategy.coder_model", "")
	v.SetDefault("strategy.overrides", map[string]string{})
	v.SetDefault("strategy.fallbacks", []string{})

	v.SetDefault("artifacts.output_dir", ".agentic")
	v.SetDefault("artifacts.metrics_file", "")
	v.SetDefault("artifacts.s3.enabled", false)
	v.SetDefault("artifacts.s3.endpoint", "")
	v.SetDefault("artifacts.s3.region", "us-east-1")
	v.SetDefault("artifacts.s3.access_key", "")
	v.SetDefault("artifacts.s3.secret_key", "")
	v.SetDefault("artifacts.s3.bucket", "")
	v.SetDefault("artifacts.s3.use_ssl", true)

	v.SetDefault("apply.branch", "agentic-patches")
	v.SetDefault("apply.commit_message", "Apply agentic patches")
	v.SetDefault("apply.ledger_dir", ".agentic/ledger")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// DefaultFastLimits returns the per-role prompt ceilings used in fast mode.
func DefaultFastLimits() map[string]int {
	return map[string]int{
		"summary":   3500,
		"api":       6000,
		"spec":      4000,
		"specmatic": 3000,
		"diffs":     5000,
	}
}

// applyBackendDefaults wires a local Ollama backend when no providers or models are configured.
func applyBackendDefaults(cfg *Config) {
	if len(cfg.Providers) > 0 || len(cfg.Models) > 0 {
		return
	}
	cfg.Providers = map[string]ProviderConfig{
		"local": {Type: "ollama", BaseURL: "http://127.0.0.1:11434", Timeout: 600 * time.Second},
	}
	cfg.Models = map[string]ModelConfig{
		"planner": {Provider: "local", Model: "llama3.1", Default: true},
		"coder":   {Provider: "local", Model: "qwen2.5-coder"},
	}
	if cfg.Strategy.PlannerModel == "" {
		cfg.Strategy.PlannerModel = "planner"
	}
	if cfg.Strategy.CoderModel == "" {
		cfg.Strategy.CoderModel = "coder"
	}
}

// normalizeCommand splits a single-element command the same way a plain string is split.
func normalizeCommand(cmd []string) []string {
	if len(cmd) == 1 {
		return strings.Fields(cmd[0])
	}
	return cmd
}

// Validate performs sanity checks on configuration values.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c *Config) validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}
	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("provider %q timeout cannot be negative", name)
		}
	}

	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}
		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}
		if t := m.Temperature; t != nil && (*t < 0 || *t > 2) {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}
		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}
	}

	if err := c.Strategy.validate(c.Models); err != nil {
		return err
	}

	if strings.TrimSpace(c.Project.SurefireDir) == "" {
		return errors.New("project.surefire_dir must be set")
	}
	if len(c.Test.Command) == 0 {
		return errors.New("test.command must be set")
	}
	if c.Test.TimeoutSeconds < 0 {
		return errors.New("test.timeout_seconds must be >= 0")
	}

	if c.Limits.FilesPerSection < 0 || c.Limits.MaxContextChars < 0 || c.Limits.ConfigChars < 0 {
		return errors.New("limits must be >= 0")
	}
	if c.Limits.IndexFiles < 0 || c.Limits.CacheEntries < 0 {
		return errors.New("limits.index_files and limits.cache_entries must be >= 0")
	}

	for role, limit := range c.Agent.FastLimits {
		if !IsRole(role) {
			return fmt.Errorf("agent.fast_limits references unknown role %q", role)
		}
		if limit <= 0 {
			return fmt.Errorf("agent.fast_limits.%s must be > 0", role)
		}
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return errors.New("agent.temperature must be within [0,2]")
	}

	if strings.TrimSpace(c.Artifacts.OutputDir) == "" {
		return errors.New("artifacts.output_dir must be set")
	}
	if s3 := c.Artifacts.S3; s3.Enabled {
		if strings.TrimSpace(s3.Endpoint) == "" || strings.TrimSpace(s3.Bucket) == "" {
			return errors.New("artifacts.s3 requires endpoint and bucket when enabled")
		}
		if strings.TrimSpace(s3.AccessKey) == "" || strings.TrimSpace(s3.SecretKey) == "" {
			return errors.New("artifacts.s3 requires access_key and secret_key when enabled")
		}
	}

	if strings.TrimSpace(c.Apply.Branch) == "" {
		return errors.New("apply.branch must be set")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console or json, got %q", c.Logging.Format)
	}

	return nil
}

// FastLimit returns the fast-mode ceiling for role, falling back to the built-in default.
func (c *Config) FastLimit(role string) int {
	if limit, ok := c.Agent.FastLimits[role]; ok && limit > 0 {
		return limit
	}
	return DefaultFastLimits()[role]
}

// RepoPath joins rel onto the repository root; absolute paths are returned unchanged.
func (c *Config) RepoPath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Project.RepoRoot, rel)
}

// SurefirePath is the absolute surefire report directory.
func (c *Config) SurefirePath() string {
	return c.RepoPath(c.Project.SurefireDir)
}

// SpecmaticLogPath resolves the log next to the surefire directory, as the test plugin writes it.
func (c *Config) SpecmaticLogPath() string {
	if filepath.IsAbs(c.Project.SpecmaticLog) {
		return c.Project.SpecmaticLog
	}
	return filepath.Join(filepath.Dir(c.SurefirePath()), c.Project.SpecmaticLog)
}

// OutputPath is the absolute artifact root.
func (c *Config) OutputPath() string {
	return c.RepoPath(c.Artifacts.OutputDir)
}

// TestTimeout converts test.timeout_seconds; zero means no timeout.
func (c *Config) TestTimeout() time.Duration {
	return time.Duration(c.Test.TimeoutSeconds) * time.Second
}
