// Package config loads the orchestrator's two configuration files:
// config.json (provider/prompt wiring) and system.json (engine knobs), and
// watches both for hot reload.
package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config maps directly onto config.json. It holds business-level settings:
// which LLM provider groups exist and where prompt templates live.
type Config struct {
	// Providers holds one raw JSON blob per logical arm name ("multimodal",
	// "premium", "reply"), each unmarshalled by the llmclient registry into
	// a ProviderGroupConfig.
	Providers map[string]jsoniter.RawMessage `json:"providers"`
	// PromptDir is the directory the default PromptStore adapter reads
	// templates from.
	PromptDir string `json:"prompt_dir"`
}

// DeepCopy clones Config, including the Providers map.
func (c *Config) DeepCopy() *Config {
	newCfg := *c
	if c.Providers != nil {
		newCfg.Providers = make(map[string]jsoniter.RawMessage, len(c.Providers))
		for k, v := range c.Providers {
			newCfg.Providers[k] = v
		}
	}
	return &newCfg
}

// Validate ensures config.json carries the mandatory arms.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("mandatory 'providers' configuration is missing or empty")
	}
	for _, arm := range []string{"multimodal", "premium", "reply"} {
		if _, ok := c.Providers[arm]; !ok {
			return fmt.Errorf("provider arm %q is not configured", arm)
		}
	}
	return nil
}

// SystemConfig holds the engine-level parameters from system.json: the
// configuration surface named in the external interface, plus operational
// timeouts and TTLs.
type SystemConfig struct {
	// MergeStepEnabled toggles the single-call screenshot analysis flow.
	MergeStepEnabled bool `json:"merge_step_enabled"`
	// ParallelEnabled toggles per-item concurrent dispatch; has no effect
	// unless MergeStepEnabled is also true.
	ParallelEnabled bool `json:"parallel_enabled"`
	// MaxRetries bounds reply generation attempts.
	MaxRetries int `json:"max_retries"`
	// IntimacyCheckEnabled toggles the moderation gate in the reply loop.
	IntimacyCheckEnabled bool `json:"intimacy_check_enabled"`
	// ModerationFailOpen decides accept (true) vs reject (false) when the
	// moderation service is unreachable.
	ModerationFailOpen bool `json:"moderation_fail_open"`
	// PromptLogEnabled is read from system.json but no component consults
	// it; prompt and response text are never written to trace events.
	PromptLogEnabled bool `json:"prompt_log_enabled"`
	// PlainTextWrapThreshold is the character count under which a
	// non-JSON reply reply is wrapped instead of rejected.
	PlainTextWrapThreshold int `json:"plain_text_wrap_threshold"`

	// RaceArmTimeoutMs bounds a single race arm call.
	RaceArmTimeoutMs int `json:"race_arm_timeout_ms"`
	// RequestTimeoutMs bounds the whole request scope.
	RequestTimeoutMs int `json:"request_timeout_ms"`
	// RetryDelayMs is the backoff between reply retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// CacheTTLSeconds is how long a session's cache bucket is retained.
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
	// CacheSweepIntervalMs is how often the TTL sweep goroutine runs.
	CacheSweepIntervalMs int `json:"cache_sweep_interval_ms"`
	// ImageFetchTimeoutMs bounds a single image download.
	ImageFetchTimeoutMs int `json:"image_fetch_timeout_ms"`
	// ImageFetchMaxBytes caps a single image download's size.
	ImageFetchMaxBytes int64 `json:"image_fetch_max_bytes"`
	// LogLevel sets the minimum slog severity. One of debug/info/warn/error.
	LogLevel string `json:"log_level"`
	// ModerationEndpoint is the HTTP moderation service URL. Empty disables
	// the moderation gate regardless of IntimacyCheckEnabled.
	ModerationEndpoint string `json:"moderation_endpoint"`
}

// DeepCopy creates a full copy of SystemConfig.
func (s *SystemConfig) DeepCopy() *SystemConfig {
	newSys := *s
	return &newSys
}

// DefaultSystemConfig returns safe defaults, used when system.json is
// missing or partially specified.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MergeStepEnabled:       true,
		ParallelEnabled:        true,
		MaxRetries:             3,
		IntimacyCheckEnabled:   true,
		ModerationFailOpen:     false,
		PromptLogEnabled:       false,
		PlainTextWrapThreshold: 500,
		RaceArmTimeoutMs:       15000,
		RequestTimeoutMs:       60000,
		RetryDelayMs:           500,
		CacheTTLSeconds:        86400,
		CacheSweepIntervalMs:   60000,
		ImageFetchTimeoutMs:    10000,
		ImageFetchMaxBytes:     10 << 20,
		LogLevel:               "info",
	}
}

// Load reads config.json and system.json from the given directory-relative
// paths and returns parsed, validated configuration objects.
func Load(configPath, systemPath string) (*Config, *SystemConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found: please create one", configPath)
	}

	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(configFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := LoadSystemConfig(systemPath)

	return &cfg, sysCfg, nil
}

// LoadSystemConfig loads system settings, falling back to defaults for any
// file that is missing or fails to parse.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	if err := json.Unmarshal(file, cfg); err != nil {
		return cfg
	}

	return cfg
}
