// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aiku/mautrix-telegram/pkg/bridge/database"
)

// ResolutionKind classifies the outcome of resolving a room alias.
type ResolutionKind int

const (
	// ResolutionNotOurs means the alias belongs to another bridge or user
	// and must be ignored silently.
	ResolutionNotOurs ResolutionKind = iota
	// ResolutionAlreadyLinked means a room already exists for the chat.
	ResolutionAlreadyLinked
	// ResolutionShouldProvision means the alias is ours but no room exists
	// for the chat yet.
	ResolutionShouldProvision
)

func (rk ResolutionKind) String() string {
	switch rk {
	case ResolutionNotOurs:
		return "not ours"
	case ResolutionAlreadyLinked:
		return "already linked"
	case ResolutionShouldProvision:
		return "should provision"
	default:
		return "unknown"
	}
}

// Resolution is the resolver's decision for one alias lookup.
type Resolution struct {
	Kind ResolutionKind
	// Link is set for ResolutionAlreadyLinked.
	Link *database.Link
	// ChatID and AliasLocalpart are set for ResolutionShouldProvision.
	// AliasLocalpart is re-encoded from the decoded chat ID, normalizing
	// any formatting drift in the caller-supplied alias.
	ChatID         string
	AliasLocalpart string
}

// RoomResolver decides what to do with an alias lookup. It performs no
// network I/O; provisioning decisions are carried out by the caller.
type RoomResolver struct {
	config *Config
	store  LinkStore
	log    zerolog.Logger
}

func NewRoomResolver(cfg *Config, store LinkStore, log zerolog.Logger) *RoomResolver {
	return &RoomResolver{
		config: cfg,
		store:  store,
		log:    log.With().Str("component", "resolver").Logger(),
	}
}

// Resolve parses the alias, checks ownership and looks up the link store.
// Foreign or malformed aliases resolve to NotOurs, never to an error. Any
// existing link, confirmed or provisional, resolves to AlreadyLinked so a
// chat is provisioned at most once.
func (rr *RoomResolver) Resolve(ctx context.Context, aliasString string) (Resolution, error) {
	alias, ok := ParseAlias(aliasString)
	if !ok || !alias.IsOurs(rr.config) {
		rr.log.Trace().Str("alias", aliasString).Msg("Alias is not ours")
		return Resolution{Kind: ResolutionNotOurs}, nil
	}
	link, err := rr.store.GetByChatID(ctx, alias.ChatID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to look up chat link: %w", err)
	}
	if link != nil {
		return Resolution{Kind: ResolutionAlreadyLinked, Link: link}, nil
	}
	return Resolution{
		Kind:           ResolutionShouldProvision,
		ChatID:         alias.ChatID,
		AliasLocalpart: FormatAliasLocalpart(rr.config.Bridge.AliasPrefix, alias.ChatID),
	}, nil
}
