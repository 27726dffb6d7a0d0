package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty listen address",
			mutate: func(cfg *Config) {
				cfg.ListenAddr = ""
			},
			wantErr: "listen address",
		},
		{
			name: "empty database url",
			mutate: func(cfg *Config) {
				cfg.DatabaseURL = ""
			},
			wantErr: "database URL",
		},
		{
			name: "empty catalog base url",
			mutate: func(cfg *Config) {
				cfg.CatalogBaseURL = ""
			},
			wantErr: "catalog base URL",
		},
		{
			name: "catalog base url without host",
			mutate: func(cfg *Config) {
				cfg.CatalogBaseURL = "http://"
			},
			wantErr: "catalog base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "empty user agent",
			mutate: func(cfg *Config) {
				cfg.UserAgent = ""
			},
			wantErr: "user agent",
		},
		{
			name: "display page size above cap",
			mutate: func(cfg *Config) {
				cfg.DisplayPageSize = 200
			},
			wantErr: "max display page size",
		},
		{
			name: "zero result cache size",
			mutate: func(cfg *Config) {
				cfg.ResultCacheSize = 0
			},
			wantErr: "result cache size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestEnvInt(t *testing.T) {
	if _, ok, err := EnvInt("HARVESTER_TEST_UNSET"); ok || err != nil {
		t.Fatalf("unset variable: ok=%v err=%v, want false/nil", ok, err)
	}

	t.Setenv("HARVESTER_TEST_INT", "42")
	value, ok, err := EnvInt("HARVESTER_TEST_INT")
	if err != nil || !ok || value != 42 {
		t.Fatalf("EnvInt = (%d, %v, %v), want (42, true, nil)", value, ok, err)
	}

	t.Setenv("HARVESTER_TEST_INT", "not-a-number")
	if _, _, err := EnvInt("HARVESTER_TEST_INT"); err == nil {
		t.Fatalf("expected error for malformed integer")
	}
}

func TestEnvString(t *testing.T) {
	if _, ok := EnvString("HARVESTER_TEST_UNSET"); ok {
		t.Fatalf("unset variable should report ok=false")
	}

	t.Setenv("HARVESTER_TEST_STR", "value")
	value, ok := EnvString("HARVESTER_TEST_STR")
	if !ok || value != "value" {
		t.Fatalf("EnvString = (%q, %v), want (\"value\", true)", value, ok)
	}
}
