//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
gateway:
  api_key: key
  private_key: secret
  currency: DKK
database:
  url: postgres://localhost/coolpay
redis:
  url: localhost:6379
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Redis.TTL != 7*24*time.Hour {
		t.Errorf("expected 7 day cache ttl, got %s", cfg.Redis.TTL)
	}
	if cfg.Gateway.BaseURL != DefaultBaseURL {
		t.Errorf("expected default base url, got %q", cfg.Gateway.BaseURL)
	}
	if cfg.Gateway.APIVersion != "v10" {
		t.Errorf("expected api version v10, got %q", cfg.Gateway.APIVersion)
	}
	if cfg.Gateway.Timeout != 15*time.Second {
		t.Errorf("expected 15s gateway timeout, got %s", cfg.Gateway.Timeout)
	}
	if cfg.HTTP.CallbackPath != "/callback" {
		t.Errorf("expected /callback, got %q", cfg.HTTP.CallbackPath)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestParse_BaseURLGetsTrailingSlash(t *testing.T) {
	in := strings.Replace(minimalYAML, "  currency: DKK", "  currency: DKK\n  base_url: http://localhost:9000", 1)
	cfg, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.BaseURL != "http://localhost:9000/" {
		t.Errorf("expected trailing slash, got %q", cfg.Gateway.BaseURL)
	}
}

func TestParse_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing api key", "gateway:\n  private_key: s\n  currency: DKK\n", "gateway.api_key"},
		{"missing private key", "gateway:\n  api_key: k\n  currency: DKK\n", "gateway.private_key"},
		{"missing currency", "gateway:\n  api_key: k\n  private_key: s\n", "gateway.currency"},
		{"missing database", "gateway:\n  api_key: k\n  private_key: s\n  currency_auto: true\n", "database.url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Runtime.Dev {
		t.Error("expected dev flag to be carried into runtime config")
	}
	if cfg.Gateway.Currency != "DKK" {
		t.Errorf("expected DKK, got %q", cfg.Gateway.Currency)
	}
}
