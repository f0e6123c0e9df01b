package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds everything loaded from config.env / environment variables.
type Config struct {
	ListenAddr        string `mapstructure:"LISTEN_ADDR"`
	DSN               string `mapstructure:"DSN"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	PaymongoSecretKey string `mapstructure:"PAYMONGO_SECRET_KEY"`
	PaymongoBaseURL   string `mapstructure:"PAYMONGO_BASE_URL"`
	FrontendBaseURL   string `mapstructure:"FRONTEND_BASE_URL"`
	APIBaseURL        string `mapstructure:"API_BASE_URL"`
	SMTPHost          string `mapstructure:"SMTP_HOST"`
	SMTPPort          int    `mapstructure:"SMTP_PORT"`
	SMTPFrom          string `mapstructure:"SMTP_FROM"`
}

// Load reads config.env from the working directory, letting real
// environment variables override file values.
func Load() (Config, error) {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("LISTEN_ADDR", ":8080")
	viper.SetDefault("PAYMONGO_BASE_URL", "https://api.paymongo.com/v1")

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine when everything comes from the environment.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first missing required key. The payment keys are
// re-checked by the dispatch stage too, so a misconfigured deploy fails
// before any donation record is created.
func (c Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"DSN", c.DSN},
		{"JWT_SECRET", c.JWTSecret},
		{"PAYMONGO_SECRET_KEY", c.PaymongoSecretKey},
		{"PAYMONGO_BASE_URL", c.PaymongoBaseURL},
		{"FRONTEND_BASE_URL", c.FrontendBaseURL},
		{"API_BASE_URL", c.APIBaseURL},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("missing required config key %s", r.key)
		}
	}
	return nil
}
