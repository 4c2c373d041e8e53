// Copyright 2024-2026 Aiku AI

package bridge

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestExampleConfigParses(t *testing.T) {
	t.Parallel()
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExampleConfig), &cfg); err != nil {
		t.Fatalf("example config does not parse: %v", err)
	}
	if cfg.Homeserver.Domain != "example.com" {
		t.Errorf("homeserver.domain = %q", cfg.Homeserver.Domain)
	}
	if cfg.Bridge.AliasPrefix != "telegram" {
		t.Errorf("bridge.alias_prefix = %q", cfg.Bridge.AliasPrefix)
	}
	if cfg.Bridge.TransactionCacheSize != 1024 {
		t.Errorf("bridge.transaction_cache_size = %d", cfg.Bridge.TransactionCacheSize)
	}
	if cfg.Database.Type != "sqlite3-fk-wal" {
		t.Errorf("database.type = %q", cfg.Database.Type)
	}
	if cfg.Appservice.ListenAddr != ":29317" {
		t.Errorf("appservice.listen_addr = %q", cfg.Appservice.ListenAddr)
	}
}

func TestExampleConfigRequiresRealTokens(t *testing.T) {
	t.Parallel()
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExampleConfig), &cfg); err != nil {
		t.Fatal(err)
	}
	// The example ships with placeholder tokens; it must not validate as-is.
	err := cfg.Validate()
	if err == nil {
		t.Fatal("example config validated with placeholder tokens")
	}
	if !strings.Contains(err.Error(), "as_token") {
		t.Errorf("unexpected validation error: %v", err)
	}

	cfg.Appservice.ASToken = "real-as-token"
	cfg.Appservice.HSToken = "real-hs-token"
	if err = cfg.Validate(); err != nil {
		t.Errorf("config with real tokens failed validation: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	valid := func() *Config {
		cfg := newTestConfig()
		cfg.Database.URI = "file:test.db"
		return cfg
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("baseline config failed validation: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing homeserver address", func(c *Config) { c.Homeserver.Address = "" }, "homeserver.address"},
		{"missing homeserver domain", func(c *Config) { c.Homeserver.Domain = "" }, "homeserver.domain"},
		{"missing as_token", func(c *Config) { c.Appservice.ASToken = "" }, "as_token"},
		{"missing hs_token", func(c *Config) { c.Appservice.HSToken = "" }, "hs_token"},
		{"missing bot username", func(c *Config) { c.Appservice.BotUsername = "" }, "bot_username"},
		{"missing alias prefix", func(c *Config) { c.Bridge.AliasPrefix = "" }, "alias_prefix"},
		{"missing database URI", func(c *Config) { c.Database.URI = "" }, "database.uri"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted broken config")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
