// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-telegram/pkg/bridge/database"
)

// aliasesContent is the m.room.aliases state event payload. The list is the
// complete current alias set of the room, not a delta.
type aliasesContent struct {
	Aliases []id.RoomAlias `json:"aliases"`
}

// AliasSyncHandler applies m.room.aliases events to the link store. Because
// the homeserver sends the full alias list on every change, the stored link
// set for the room is replaced wholesale; patching incrementally would leave
// stale links behind when an alias disappears from the list.
type AliasSyncHandler struct {
	config *Config
	store  LinkStore
	log    zerolog.Logger
}

func NewAliasSyncHandler(cfg *Config, store LinkStore, log zerolog.Logger) *AliasSyncHandler {
	return &AliasSyncHandler{
		config: cfg,
		store:  store,
		log:    log.With().Str("component", "alias_sync").Logger(),
	}
}

// Handle rebuilds the room's link set from the event's alias list. Aliases
// that don't parse or belong to someone else are dropped silently; only a
// store failure is fatal.
func (h *AliasSyncHandler) Handle(ctx context.Context, evt *WireEvent) error {
	if evt.RoomID == "" {
		return fmt.Errorf("aliases event missing room_id")
	}
	var content aliasesContent
	if err := json.Unmarshal(evt.Content, &content); err != nil {
		return fmt.Errorf("failed to parse aliases content: %w", err)
	}

	var links []*database.Link
	seen := make(map[string]struct{})
	for _, raw := range content.Aliases {
		alias, ok := ParseAlias(string(raw))
		if !ok || !alias.IsOurs(h.config) {
			continue
		}
		if _, dup := seen[alias.ChatID]; dup {
			continue
		}
		seen[alias.ChatID] = struct{}{}
		links = append(links, &database.Link{ChatID: alias.ChatID, Confirmed: true})
	}

	if err := h.store.ReplaceForRoom(ctx, evt.RoomID, links); err != nil {
		return fmt.Errorf("%w: replacing links for %s: %v", ErrStoreFailure, evt.RoomID, err)
	}
	h.log.Debug().
		Str("room_id", evt.RoomID.String()).
		Int("aliases", len(content.Aliases)).
		Int("links", len(links)).
		Msg("Synchronized room aliases")
	return nil
}
