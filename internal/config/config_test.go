package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL == "" {
		t.Fatalf("default base url missing")
	}
	if cfg.PollInterval != time.Second || cfg.MaxPollRetries != 3 {
		t.Fatalf("poll defaults wrong: %+v", cfg)
	}
	if cfg.SessionBuffer != 5*time.Second {
		t.Fatalf("session buffer default wrong: %v", cfg.SessionBuffer)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
apiBaseUrl: https://api.internal.example.com
organizationId: org-42
pollInterval: 250ms
maxPollRetries: 7
storeDir: /var/lib/custody
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "https://api.internal.example.com" {
		t.Fatalf("base url = %q", cfg.APIBaseURL)
	}
	if cfg.OrganizationID != "org-42" || cfg.MaxPollRetries != 7 {
		t.Fatalf("yaml fields not applied: %+v", cfg)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("poll interval = %v", cfg.PollInterval)
	}
	if cfg.StoreDir != "/var/lib/custody" {
		t.Fatalf("store dir = %q", cfg.StoreDir)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
apiBaseUrl: https://from-file.example.com
organizationId: org-file
`)
	t.Setenv("CUSTODY_API_BASE_URL", "https://from-env.example.com")
	t.Setenv("CUSTODY_STORE_PASSPHRASE", "hunter2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "https://from-env.example.com" {
		t.Fatalf("env must win over yaml, got %q", cfg.APIBaseURL)
	}
	if cfg.OrganizationID != "org-file" {
		t.Fatalf("untouched yaml value lost: %q", cfg.OrganizationID)
	}
	if cfg.StorePassphrase != "hunter2" {
		t.Fatalf("env-only passphrase not applied")
	}
}

func TestBadYAMLIsAnError(t *testing.T) {
	path := writeConfig(t, "apiBaseUrl: [not: valid")
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed yaml must fail")
	}
}
