// Copyright 2024-2026 Aiku AI

package bridge

import (
	_ "embed"
	"fmt"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/util/dbutil"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// HomeserverConfig points the bridge at its homeserver.
type HomeserverConfig struct {
	Address string `yaml:"address"`
	Domain  string `yaml:"domain"`
}

// AppserviceConfig holds the inbound listener settings and the shared secrets
// exchanged with the homeserver registration.
type AppserviceConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	ASToken     string `yaml:"as_token"`
	HSToken     string `yaml:"hs_token"`
	BotUsername string `yaml:"bot_username"`
}

// BridgeConfig holds the alias naming convention and processing knobs.
type BridgeConfig struct {
	// AliasPrefix is the localpart prefix of bridged room aliases
	// (#<prefix>_<chat id>:<domain>). Aliases with any other prefix are
	// treated as belonging to someone else and ignored.
	AliasPrefix string `yaml:"alias_prefix"`
	// TransactionCacheSize is how many recently seen transaction IDs to
	// remember for deduplicating homeserver redeliveries.
	TransactionCacheSize int `yaml:"transaction_cache_size"`
}

// Config is the full bridge configuration.
type Config struct {
	Homeserver HomeserverConfig  `yaml:"homeserver"`
	Appservice AppserviceConfig  `yaml:"appservice"`
	Bridge     BridgeConfig      `yaml:"bridge"`
	Database   dbutil.Config     `yaml:"database"`
	Logging    zeroconfig.Config `yaml:"logging"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// Validate checks that every field the core depends on is actually set.
func (c *Config) Validate() error {
	switch {
	case c.Homeserver.Address == "":
		return fmt.Errorf("homeserver.address is not set")
	case c.Homeserver.Domain == "":
		return fmt.Errorf("homeserver.domain is not set")
	case c.Appservice.ASToken == "" || c.Appservice.ASToken == "generate":
		return fmt.Errorf("appservice.as_token is not set")
	case c.Appservice.HSToken == "" || c.Appservice.HSToken == "generate":
		return fmt.Errorf("appservice.hs_token is not set")
	case c.Appservice.BotUsername == "":
		return fmt.Errorf("appservice.bot_username is not set")
	case c.Bridge.AliasPrefix == "":
		return fmt.Errorf("bridge.alias_prefix is not set")
	case c.Database.URI == "":
		return fmt.Errorf("database.uri is not set")
	}
	return nil
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "homeserver", "address")
	helper.Copy(up.Str, "homeserver", "domain")
	helper.Copy(up.Str, "appservice", "listen_addr")
	helper.Copy(up.Str, "appservice", "as_token")
	helper.Copy(up.Str, "appservice", "hs_token")
	helper.Copy(up.Str, "appservice", "bot_username")
	helper.Copy(up.Str, "bridge", "alias_prefix")
	helper.Copy(up.Int, "bridge", "transaction_cache_size")
	helper.Copy(up.Str, "database", "type")
	helper.Copy(up.Str, "database", "uri")
	helper.Copy(up.Int, "database", "max_open_conns")
	helper.Copy(up.Int, "database", "max_idle_conns")
	helper.Copy(up.Map, "logging")
}

// SpacedBlocks are the top-level config sections separated by blank lines in
// the generated config.
var SpacedBlocks = [][]string{
	{"homeserver"},
	{"appservice"},
	{"bridge"},
	{"database"},
	{"logging"},
}

// ConfigUpgrader migrates user configs to the current layout, filling new
// keys from the embedded example.
var ConfigUpgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Blocks:         SpacedBlocks,
	Base:           ExampleConfig,
}

// LoadConfig reads, upgrades and validates the config file at the given path.
// When save is true, the upgraded config is written back to disk.
func LoadConfig(path string, save bool) (*Config, error) {
	configData, _, err := up.Do(path, save, ConfigUpgrader)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	var cfg Config
	if err = yaml.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
