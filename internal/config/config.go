package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main LEIA service configuration
type Config struct {
	// Providers
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Models
	Models ModelsConfig `json:"models" mapstructure:"models"`

	// Store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Catalog search service
	Catalog CatalogConfig `json:"catalog" mapstructure:"catalog"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Purge configuration
	Purge PurgeConfig `json:"purge" mapstructure:"purge"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ProvidersConfig holds credentials and model names per provider family
type ProvidersConfig struct {
	OpenAI    OpenAIConfig       `json:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig    `json:"anthropic" mapstructure:"anthropic"`
	Local     []LocalModelConfig `json:"local" mapstructure:"local"`
}

// OpenAIConfig holds the OpenAI credentials and the models each variant uses
type OpenAIConfig struct {
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	AssistantModel string `json:"assistant_model" mapstructure:"assistant_model"`
	ResponsesModel string `json:"responses_model" mapstructure:"responses_model"`
	WizardModel    string `json:"wizard_model" mapstructure:"wizard_model"`
}

// AnthropicConfig holds the Anthropic credentials
type AnthropicConfig struct {
	APIKey string `json:"api_key" mapstructure:"api_key"`
	Model  string `json:"model" mapstructure:"model"`
}

// LocalModelConfig describes one OpenAI-compatible local endpoint
type LocalModelConfig struct {
	Name    string `json:"name" mapstructure:"name"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	Model   string `json:"model" mapstructure:"model"`
}

// ModelsConfig holds model selection configuration
type ModelsConfig struct {
	Default string `json:"default" mapstructure:"default"`
}

// StoreConfig holds session store configuration
type StoreConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// CatalogConfig holds the external search service configuration
type CatalogConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	Timeout int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Port int    `json:"port" mapstructure:"port"`
	Host string `json:"host" mapstructure:"host"`
}

// PurgeConfig holds the scheduled purge configuration
type PurgeConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Schedule  string `json:"schedule" mapstructure:"schedule"`
	TimeFrame string `json:"time_frame" mapstructure:"time_frame"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				AssistantModel: "gpt-4o",
				ResponsesModel: "gpt-4o",
				WizardModel:    "gpt-4o",
			},
			Anthropic: AnthropicConfig{
				Model: "claude-sonnet-4-20250514",
			},
		},
		Models: ModelsConfig{
			Default: "wizard",
		},
		Catalog: CatalogConfig{
			Timeout: 30,
		},
		Gateway: GatewayConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Purge: PurgeConfig{
			Enabled:   false,
			Schedule:  "0 3 * * *",
			TimeFrame: "1m",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns the config as a JSON string with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Providers.OpenAI.APIKey != "" {
		masked.Providers.OpenAI.APIKey = "***"
	}
	if masked.Providers.Anthropic.APIKey != "" {
		masked.Providers.Anthropic.APIKey = "***"
	}
	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
