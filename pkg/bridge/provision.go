// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// RoomCreator provisions rooms on the homeserver. It is the one outbound
// collaborator of the lookup flow, kept behind an interface so the API layer
// is testable without a homeserver.
type RoomCreator interface {
	CreateRoom(ctx context.Context, aliasLocalpart string) (id.RoomID, error)
}

// ChatChecker reports whether a remote chat actually exists before a room is
// provisioned for it. It is optional: without one, every syntactically valid
// chat ID is assumed to exist.
type ChatChecker interface {
	ChatExists(ctx context.Context, chatID string) (bool, error)
}

// MatrixRoomCreator creates rooms through the appservice bot account.
type MatrixRoomCreator struct {
	client *mautrix.Client
	log    zerolog.Logger
}

var _ RoomCreator = (*MatrixRoomCreator)(nil)

func NewMatrixRoomCreator(cfg *Config, log zerolog.Logger) (*MatrixRoomCreator, error) {
	client, err := mautrix.NewClient(
		cfg.Homeserver.Address,
		id.NewUserID(cfg.Appservice.BotUsername, cfg.Homeserver.Domain),
		cfg.Appservice.ASToken,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create homeserver client: %w", err)
	}
	return &MatrixRoomCreator{
		client: client,
		log:    log.With().Str("component", "provisioner").Logger(),
	}, nil
}

// CreateRoom creates a public room with the given alias localpart and returns
// the new room ID.
func (mrc *MatrixRoomCreator) CreateRoom(ctx context.Context, aliasLocalpart string) (id.RoomID, error) {
	resp, err := mrc.client.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		RoomAliasName: aliasLocalpart,
		Visibility:    "public",
		Preset:        "public_chat",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create room: %w", err)
	}
	mrc.log.Info().
		Str("room_id", resp.RoomID.String()).
		Str("alias_localpart", aliasLocalpart).
		Msg("Provisioned new room")
	return resp.RoomID, nil
}
