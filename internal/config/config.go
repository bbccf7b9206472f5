package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	MessageRateLimit  int           `mapstructure:"message_rate_limit" yaml:"message_rate_limit"`

	Assistant Assistant `mapstructure:"assistant" yaml:"assistant"`
}

// Assistant configures the AI assistant integration.
type Assistant struct {
	Provider       string        `mapstructure:"provider" yaml:"provider"`
	Model          string        `mapstructure:"model" yaml:"model"`
	APIKey         string        `mapstructure:"api_key" yaml:"api_key"`
	OllamaHost     string        `mapstructure:"ollama_host" yaml:"ollama_host"`
	Name           string        `mapstructure:"name" yaml:"name"`
	Trigger        string        `mapstructure:"trigger" yaml:"trigger"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "collabroom.db",
		JWTIssuer:         "collabroom",
		JWTAudience:       "collabroom",
		MessageRateLimit:  120,
		Assistant: Assistant{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			OllamaHost:     "http://localhost:11434",
			Name:           "Bevin",
			Trigger:        "@ai",
			MaxAttempts:    3,
			AttemptTimeout: 15 * time.Second,
			RetryBackoff:   time.Second,
		},
	}
}
