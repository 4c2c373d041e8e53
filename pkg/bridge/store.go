// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"

	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-telegram/pkg/bridge/database"
)

// LinkStore is the slice of the database the resolver and event handlers
// depend on. It is an interface so both stay testable without a real
// database behind them.
type LinkStore interface {
	// GetByChatID returns the link for a remote chat ID, or nil when the
	// chat is not bridged.
	GetByChatID(ctx context.Context, chatID string) (*database.Link, error)
	// GetByRoomID returns every link attached to a room.
	GetByRoomID(ctx context.Context, roomID id.RoomID) ([]*database.Link, error)
	// ReplaceForRoom atomically replaces the full link set of a room.
	ReplaceForRoom(ctx context.Context, roomID id.RoomID, links []*database.Link) error
	// InsertProvisional records an unconfirmed link for a freshly
	// provisioned room.
	InsertProvisional(ctx context.Context, roomID id.RoomID, chatID string) error
}

var _ LinkStore = (*database.LinkQuery)(nil)
