// Package config loads client configuration from a yaml file with
// environment overrides. Constructors downstream take explicit config
// structs; nothing here is global.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	APIBaseURL        string        `yaml:"apiBaseUrl"        env:"CUSTODY_API_BASE_URL"`
	AuthProxyURL      string        `yaml:"authProxyUrl"      env:"CUSTODY_AUTH_PROXY_URL"`
	AuthProxyConfigID string        `yaml:"authProxyConfigId" env:"CUSTODY_AUTH_PROXY_CONFIG_ID"`
	OrganizationID    string        `yaml:"organizationId"    env:"CUSTODY_ORGANIZATION_ID"`
	SignerPublicKey   string        `yaml:"signerPublicKey"   env:"CUSTODY_SIGNER_PUBLIC_KEY"`
	PollInterval      time.Duration `yaml:"pollInterval"      env:"CUSTODY_POLL_INTERVAL"`
	MaxPollRetries    int           `yaml:"maxPollRetries"    env:"CUSTODY_MAX_POLL_RETRIES"`
	SessionBuffer     time.Duration `yaml:"sessionBuffer"     env:"CUSTODY_SESSION_BUFFER"`
	StoreDir          string        `yaml:"storeDir"          env:"CUSTODY_STORE_DIR"`
	// The store passphrase is env-only; it has no business in a config file.
	StorePassphrase string `yaml:"-" env:"CUSTODY_STORE_PASSPHRASE"`
}

func defaults() Config {
	return Config{
		APIBaseURL:     "https://api.custody.example.com",
		PollInterval:   time.Second,
		MaxPollRetries: 3,
		SessionBuffer:  5 * time.Second,
	}
}

// Load reads the yaml file at path (optional) and applies env overrides on
// top. Candidate default locations are tried when path is empty.
func Load(path string) (Config, error) {
	cfg := defaults()

	candidates := []string{path}
	if path == "" {
		candidates = []string{"configs/config.yaml"}
	}
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", candidate, err)
		}
		break
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env overrides: %w", err)
	}
	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("apiBaseUrl is required")
	}
	return cfg, nil
}
