// Copyright 2024-2026 Aiku AI

package bridge

import (
	"fmt"
	"regexp"

	"maunium.net/go/mautrix/id"
)

// aliasRegex matches the bridge alias grammar #<prefix>_<chatID>:<host>.
// The prefix match is greedy, so prefixes containing underscores split at the
// last underscore before the chat ID. Chat IDs are restricted to digits and
// hyphens because Telegram group IDs are negative numbers.
var aliasRegex = regexp.MustCompile(`^#(.+)_([0-9-]+):(.+)$`)

// Alias is the decoded form of a bridged room alias.
type Alias struct {
	Prefix     string
	ChatID     string
	Homeserver string
}

// ParseAlias decodes a room alias string. It returns ok=false when the string
// does not match the bridge alias grammar; that is an expected outcome for
// foreign aliases, not an error.
func ParseAlias(alias string) (Alias, bool) {
	match := aliasRegex.FindStringSubmatch(alias)
	if match == nil {
		return Alias{}, false
	}
	return Alias{
		Prefix:     match[1],
		ChatID:     match[2],
		Homeserver: match[3],
	}, true
}

// IsOurs reports whether the alias belongs to this bridge. Both the localpart
// prefix and the homeserver must match the configuration exactly, with no
// case normalization.
func (a Alias) IsOurs(cfg *Config) bool {
	return a.Prefix == cfg.Bridge.AliasPrefix && a.Homeserver == cfg.Homeserver.Domain
}

// FormatAliasLocalpart returns the canonical alias localpart for a chat ID.
func FormatAliasLocalpart(prefix, chatID string) string {
	return prefix + "_" + chatID
}

// FormatAlias returns the full canonical alias for a chat ID. It round-trips
// with ParseAlias for every chat ID over the permitted character set.
func FormatAlias(prefix, chatID, homeserver string) id.RoomAlias {
	return id.RoomAlias(fmt.Sprintf("#%s:%s", FormatAliasLocalpart(prefix, chatID), homeserver))
}
