// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Inference() InferenceConfig
	Perception() PerceptionConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Orchestrator() OrchestratorConfig
	Database() DatabaseConfig
	Metrics() MetricsConfig

	// Setters used by CLI flag overrides.
	SetBrowserHeadless(bool)
	SetInferenceProvider(LLMProvider)
	SetUnresolvedPolicy(UnresolvedPolicy)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	InferenceCfg    InferenceConfig    `mapstructure:"inference" yaml:"inference"`
	PerceptionCfg   PerceptionConfig   `mapstructure:"perception" yaml:"perception"`
	BrowserCfg      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	NetworkCfg      NetworkConfig      `mapstructure:"network" yaml:"network"`
	OrchestratorCfg OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	DatabaseCfg     DatabaseConfig     `mapstructure:"database" yaml:"database"`
	MetricsCfg      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig             { return c.LoggerCfg }
func (c *Config) Inference() InferenceConfig       { return c.InferenceCfg }
func (c *Config) Perception() PerceptionConfig     { return c.PerceptionCfg }
func (c *Config) Browser() BrowserConfig           { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig           { return c.NetworkCfg }
func (c *Config) Orchestrator() OrchestratorConfig { return c.OrchestratorCfg }
func (c *Config) Database() DatabaseConfig         { return c.DatabaseCfg }
func (c *Config) Metrics() MetricsConfig           { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)              { c.BrowserCfg.Headless = b }
func (c *Config) SetInferenceProvider(p LLMProvider)     { c.InferenceCfg.Provider = p }
func (c *Config) SetUnresolvedPolicy(p UnresolvedPolicy) { c.OrchestratorCfg.UnresolvedPolicy = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider defines the supported inference backends.
type LLMProvider string

const (
	ProviderOllama LLMProvider = "ollama"
	ProviderGemini LLMProvider = "gemini"
)

// InferenceConfig describes the language/vision model service.
type InferenceConfig struct {
	Provider      LLMProvider   `mapstructure:"provider" yaml:"provider"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	VisionModel   string        `mapstructure:"vision_model" yaml:"vision_model"`
	LanguageModel string        `mapstructure:"language_model" yaml:"language_model"`
	APITimeout    time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	NumCtx        int           `mapstructure:"num_ctx" yaml:"num_ctx"`
	Temperature   float32       `mapstructure:"temperature" yaml:"temperature"`

	// RequestsPerSecond <= 0 disables client-side rate limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// PerceptionConfig describes the screen-parsing (Gradio) service.
type PerceptionConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	APITimeout   time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	BoxThreshold float64       `mapstructure:"box_threshold" yaml:"box_threshold"`
	IOUThreshold float64       `mapstructure:"iou_threshold" yaml:"iou_threshold"`
	UsePaddleOCR bool          `mapstructure:"use_paddleocr" yaml:"use_paddleocr"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	BlockAds        bool           `mapstructure:"block_ads" yaml:"block_ads"`
	// BlockedURLs are extra URL patterns blocked in addition to the built-in ad and tracker list.
	BlockedURLs []string `mapstructure:"blocked_urls" yaml:"blocked_urls"`
}

// NetworkConfig tunes page loading and network-idle detection.
type NetworkConfig struct {
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleQuietPeriod   time.Duration     `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	IdleTimeout       time.Duration     `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	SelectorTimeout   time.Duration     `mapstructure:"selector_timeout" yaml:"selector_timeout"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
}

// UnresolvedPolicy decides what happens when an element cannot be resolved.
type UnresolvedPolicy string

const (
	// PolicySkip ignores the miss and carries on with the next field.
	PolicySkip UnresolvedPolicy = "skip"
	// PolicyFail turns the miss into a task failure.
	PolicyFail UnresolvedPolicy = "fail"
)

// OrchestratorConfig configures task execution.
type OrchestratorConfig struct {
	UnresolvedPolicy  UnresolvedPolicy `mapstructure:"unresolved_policy" yaml:"unresolved_policy"`
	MaxDiscoveredURLs int              `mapstructure:"max_discovered_urls" yaml:"max_discovered_urls"`
	TaskTimeout       time.Duration    `mapstructure:"task_timeout" yaml:"task_timeout"`
}

// DatabaseConfig holds the database connection details. An empty URL disables the run journal.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Address   string `mapstructure:"address" yaml:"address"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pilot-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Inference --
	v.SetDefault("inference.provider", string(ProviderOllama))
	v.SetDefault("inference.vision_model", "llava")
	v.SetDefault("inference.language_model", "llama2")
	v.SetDefault("inference.api_timeout", "5m")
	v.SetDefault("inference.num_ctx", 8192)
	v.SetDefault("inference.temperature", 0.2)
	v.SetDefault("inference.requests_per_second", 0)
	v.SetDefault("inference.burst", 1)

	// -- Perception --
	v.SetDefault("perception.api_timeout", "2m")
	v.SetDefault("perception.box_threshold", 0.01)
	v.SetDefault("perception.iou_threshold", 0.01)
	v.SetDefault("perception.use_paddleocr", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.block_ads", true)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 720})

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.idle_quiet_period", "500ms")
	v.SetDefault("network.idle_timeout", "30s")
	v.SetDefault("network.selector_timeout", "30s")

	// -- Orchestrator --
	v.SetDefault("orchestrator.unresolved_policy", string(PolicySkip))
	v.SetDefault("orchestrator.max_discovered_urls", 50)
	v.SetDefault("orchestrator.task_timeout", "10m")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9464")
	v.SetDefault("metrics.namespace", "pilot")
}

// legacyEnv maps config keys onto the environment variable names older
// deployments use. The PILOT_ prefixed name is listed first and wins.
var legacyEnv = map[string][]string{
	"inference.base_url":       {"PILOT_INFERENCE_BASE_URL", "OLLAMA_BASE_URL"},
	"inference.vision_model":   {"PILOT_INFERENCE_VISION_MODEL", "OLLAMA_VISION_MODEL"},
	"inference.language_model": {"PILOT_INFERENCE_LANGUAGE_MODEL", "OLLAMA_LANGUAGE_MODEL"},
	"inference.api_key":        {"PILOT_INFERENCE_API_KEY", "GEMINI_API_KEY"},
	"perception.base_url":      {"PILOT_PERCEPTION_BASE_URL", "GRADIO_URL"},
	"database.url":             {"PILOT_DATABASE_URL", "DATABASE_URL"},
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	for key, names := range legacyEnv {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("error binding env for %s: %w", key, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.InferenceCfg.Provider = LLMProvider(strings.ToLower(string(cfg.InferenceCfg.Provider)))
	cfg.OrchestratorCfg.UnresolvedPolicy = UnresolvedPolicy(strings.ToLower(string(cfg.OrchestratorCfg.UnresolvedPolicy)))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.InferenceCfg.Validate(); err != nil {
		return err
	}
	if err := c.PerceptionCfg.Validate(); err != nil {
		return err
	}
	if err := c.OrchestratorCfg.Validate(); err != nil {
		return err
	}
	if c.MetricsCfg.Enabled && c.MetricsCfg.Address == "" {
		return &ConfigError{Field: "metrics.address", Reason: "is required when metrics are enabled"}
	}
	return nil
}

// Validate checks the inference settings.
func (i *InferenceConfig) Validate() error {
	switch i.Provider {
	case ProviderOllama, "":
		if i.BaseURL == "" {
			return &ConfigError{Field: "inference.base_url", Reason: "is required (set PILOT_INFERENCE_BASE_URL or OLLAMA_BASE_URL)"}
		}
	case ProviderGemini:
		if i.APIKey == "" {
			return &ConfigError{Field: "inference.api_key", Reason: "is required for the gemini provider"}
		}
	default:
		return &ConfigError{Field: "inference.provider", Reason: fmt.Sprintf("unsupported provider %q", i.Provider)}
	}
	if i.VisionModel == "" {
		return &ConfigError{Field: "inference.vision_model", Reason: "must not be empty"}
	}
	if i.LanguageModel == "" {
		return &ConfigError{Field: "inference.language_model", Reason: "must not be empty"}
	}
	if i.RequestsPerSecond > 0 && i.Burst <= 0 {
		return &ConfigError{Field: "inference.burst", Reason: "must be positive when rate limiting is enabled"}
	}
	return nil
}

// Validate checks the perception settings.
func (p *PerceptionConfig) Validate() error {
	if p.BaseURL == "" {
		return &ConfigError{Field: "perception.base_url", Reason: "is required (set PILOT_PERCEPTION_BASE_URL or GRADIO_URL)"}
	}
	return nil
}

// Validate checks the orchestrator settings.
func (o *OrchestratorConfig) Validate() error {
	switch o.UnresolvedPolicy {
	case PolicySkip, PolicyFail:
	default:
		return &ConfigError{Field: "orchestrator.unresolved_policy", Reason: fmt.Sprintf("must be %q or %q, got %q", PolicySkip, PolicyFail, o.UnresolvedPolicy)}
	}
	if o.MaxDiscoveredURLs < 0 {
		return &ConfigError{Field: "orchestrator.max_discovered_urls", Reason: "must not be negative"}
	}
	return nil
}
