package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for a screenpilot run.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	LLM    LLMConfig    `mapstructure:"llm" yaml:"llm"`
	Agent  AgentConfig  `mapstructure:"agent" yaml:"agent"`
	Screen ScreenConfig `mapstructure:"screen" yaml:"screen"`
}

// LoggerConfig controls the zap logger construction and file rotation.
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

// ColorConfig defines the ANSI color codes for console log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider identifies a supported model backend.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig holds the model pair served through the tier router: a fast
// text model for decision calls and a powerful multimodal model for vision
// discovery calls.
type LLMConfig struct {
	Fast     LLMModelConfig `mapstructure:"fast" yaml:"fast"`
	Powerful LLMModelConfig `mapstructure:"powerful" yaml:"powerful"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider          LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model             string            `mapstructure:"model" yaml:"model"`
	APIKey            string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint          string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float64           `mapstructure:"temperature" yaml:"temperature"`
	TopP              float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK              int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens         int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters     map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
	RequestsPerMinute float64           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// AgentConfig controls the perception-decision-action loop.
type AgentConfig struct {
	// MaxIterations bounds the number of capture/discover/decide/act cycles.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// StartupSettle is the one-time pause before the first capture, giving
	// the operator a moment to focus the target window.
	StartupSettle time.Duration `mapstructure:"startup_settle" yaml:"startup_settle"`
	// ActionSettle is the pause after every injected action, before the next
	// capture, letting the UI visually stabilize.
	ActionSettle     time.Duration `mapstructure:"action_settle" yaml:"action_settle"`
	ModelCallTimeout time.Duration `mapstructure:"model_call_timeout" yaml:"model_call_timeout"`
	// ScreenshotPath is where the most recent capture is written, purely for
	// diagnostics. Overwritten every iteration.
	ScreenshotPath string `mapstructure:"screenshot_path" yaml:"screenshot_path"`
	// InputText is what the default text provider types into input elements.
	InputText string `mapstructure:"input_text" yaml:"input_text"`
}

// ScreenConfig controls the browser window the agent drives and the pacing
// of injected input.
type ScreenConfig struct {
	// RemoteDebuggingURL attaches to an already-running browser when set;
	// otherwise a new instance is launched.
	RemoteDebuggingURL string `mapstructure:"remote_debugging_url" yaml:"remote_debugging_url"`
	StartURL           string `mapstructure:"start_url" yaml:"start_url"`
	Headless           bool   `mapstructure:"headless" yaml:"headless"`
	WindowWidth        int    `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight       int    `mapstructure:"window_height" yaml:"window_height"`

	// Input pacing. Durations are drawn from a normal distribution with the
	// given mean and standard deviation, then clamped to a floor, so the
	// injected events do not land at machine-perfect intervals.
	ClickHoldMean   time.Duration `mapstructure:"click_hold_mean" yaml:"click_hold_mean"`
	ClickHoldStdDev time.Duration `mapstructure:"click_hold_std_dev" yaml:"click_hold_std_dev"`
	KeyPauseMean    time.Duration `mapstructure:"key_pause_mean" yaml:"key_pause_mean"`
	KeyPauseStdDev  time.Duration `mapstructure:"key_pause_std_dev" yaml:"key_pause_std_dev"`
}

// SetDefaults registers the default value for every configuration key on the
// given viper instance. Called before any config file or env overlay.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "screenpilot")
	v.SetDefault("logger.log_file", "screenpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.fast.provider", "gemini")
	v.SetDefault("llm.fast.model", "gemini-2.5-flash")
	v.SetDefault("llm.fast.api_timeout", "60s")
	v.SetDefault("llm.fast.temperature", 0.1)
	v.SetDefault("llm.fast.requests_per_minute", 30.0)
	v.SetDefault("llm.powerful.provider", "gemini")
	v.SetDefault("llm.powerful.model", "gemini-2.5-pro")
	v.SetDefault("llm.powerful.api_timeout", "60s")
	v.SetDefault("llm.powerful.temperature", 0.1)
	v.SetDefault("llm.powerful.requests_per_minute", 15.0)

	// -- Agent --
	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.startup_settle", "5s")
	v.SetDefault("agent.action_settle", "2s")
	v.SetDefault("agent.model_call_timeout", "90s")
	v.SetDefault("agent.screenshot_path", "screenshot.png")
	v.SetDefault("agent.input_text", "automated test input")

	// -- Screen --
	v.SetDefault("screen.remote_debugging_url", "") // Usually set via flag or env var
	v.SetDefault("screen.start_url", "")            // Usually set via flag or env var
	v.SetDefault("screen.headless", false)
	v.SetDefault("screen.window_width", 1280)
	v.SetDefault("screen.window_height", 800)
	v.SetDefault("screen.click_hold_mean", "85ms")
	v.SetDefault("screen.click_hold_std_dev", "25ms")
	v.SetDefault("screen.key_pause_mean", "120ms")
	v.SetDefault("screen.key_pause_std_dev", "40ms")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data. GEMINI_API_KEY is the
	// conventional name and serves both tiers unless overridden per tier.
	v.BindEnv("llm.fast.api_key", "SCREENPILOT_LLM_FAST_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("llm.powerful.api_key", "SCREENPILOT_LLM_POWERFUL_API_KEY", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up.
	if cfg.LLM.Fast.APIKey == "" {
		cfg.LLM.Fast.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.LLM.Powerful.APIKey == "" {
		cfg.LLM.Powerful.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
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

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.Screen.Validate(); err != nil {
		return fmt.Errorf("screen configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the agent loop settings.
func (a *AgentConfig) Validate() error {
	if a.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be a positive integer")
	}
	if a.StartupSettle < 0 || a.ActionSettle < 0 {
		return fmt.Errorf("settle delays must not be negative")
	}
	if a.ModelCallTimeout <= 0 {
		return fmt.Errorf("model_call_timeout must be a positive duration")
	}
	if a.ScreenshotPath == "" {
		return fmt.Errorf("screenshot_path must not be empty")
	}
	return nil
}

// Validate checks both tiers of the LLM configuration.
func (l *LLMConfig) Validate() error {
	if err := l.Fast.Validate(); err != nil {
		return fmt.Errorf("fast tier: %w", err)
	}
	if err := l.Powerful.Validate(); err != nil {
		return fmt.Errorf("powerful tier: %w", err)
	}
	return nil
}

// Validate checks a single model configuration. The API key is deliberately
// not validated here; the client constructor owns that check so the error
// surfaces next to the endpoint it gates.
func (m *LLMModelConfig) Validate() error {
	if m.Model == "" {
		return fmt.Errorf("model name is required")
	}
	if m.Provider != ProviderGemini {
		return fmt.Errorf("unsupported provider: '%s'. Supported: [%s]", m.Provider, ProviderGemini)
	}
	if m.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be a positive duration")
	}
	if m.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests_per_minute must be positive")
	}
	return nil
}

// Validate checks the screen driver settings.
func (s *ScreenConfig) Validate() error {
	if s.RemoteDebuggingURL == "" {
		if s.WindowWidth <= 0 || s.WindowHeight <= 0 {
			return fmt.Errorf("window_width and window_height must be positive when launching a browser")
		}
	}
	if s.ClickHoldMean < 0 || s.ClickHoldStdDev < 0 || s.KeyPauseMean < 0 || s.KeyPauseStdDev < 0 {
		return fmt.Errorf("input pacing durations must not be negative")
	}
	return nil
}
