// Copyright 2024-2026 Aiku AI

package database

import (
	"context"
	"sync"

	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"
)

const (
	getLinkByChatIDQuery = `
		SELECT room_id, chat_id, confirmed FROM chat_link
		WHERE chat_id=$1 ORDER BY confirmed DESC LIMIT 1
	`
	getLinksByRoomIDQuery = `
		SELECT room_id, chat_id, confirmed FROM chat_link WHERE room_id=$1
	`
	deleteLinksByRoomIDQuery       = `DELETE FROM chat_link WHERE room_id=$1`
	deleteProvisionalByChatIDQuery = `DELETE FROM chat_link WHERE chat_id=$1 AND NOT confirmed`
	insertLinkQuery                = `INSERT INTO chat_link (room_id, chat_id, confirmed) VALUES ($1, $2, $3)`
)

// Link is one row of the room↔chat mapping. Confirmed links come from
// m.room.aliases events; provisional links are created speculatively when a
// room lookup provisions a new room, before the homeserver confirms the
// alias is attached.
type Link struct {
	qh *dbutil.QueryHelper[*Link]

	RoomID    id.RoomID
	ChatID    string
	Confirmed bool
}

func newLink(qh *dbutil.QueryHelper[*Link]) *Link {
	return &Link{qh: qh}
}

func (l *Link) Scan(row dbutil.Scannable) (*Link, error) {
	return dbutil.ValueOrErr(l, row.Scan(&l.RoomID, &l.ChatID, &l.Confirmed))
}

func (l *Link) sqlVariables() []any {
	return []any{l.RoomID, l.ChatID, l.Confirmed}
}

// LinkQuery provides access to the chat_link table.
type LinkQuery struct {
	*dbutil.QueryHelper[*Link]

	roomLocks sync.Map // id.RoomID -> *sync.Mutex
}

// GetByChatID returns the link for a remote chat ID, or nil when the chat is
// not bridged. A confirmed link wins over a provisional one for the same chat.
func (lq *LinkQuery) GetByChatID(ctx context.Context, chatID string) (*Link, error) {
	return lq.QueryOne(ctx, getLinkByChatIDQuery, chatID)
}

// GetByRoomID returns every link attached to a room.
func (lq *LinkQuery) GetByRoomID(ctx context.Context, roomID id.RoomID) ([]*Link, error) {
	return lq.QueryMany(ctx, getLinksByRoomIDQuery, roomID)
}

// InsertProvisional records a speculative link for a freshly provisioned room.
func (lq *LinkQuery) InsertProvisional(ctx context.Context, roomID id.RoomID, chatID string) error {
	return lq.Exec(ctx, insertLinkQuery, roomID, chatID, false)
}

// ReplaceForRoom atomically replaces every link of a room with the given set.
// The new links are stored as confirmed, and provisional links for the same
// chat IDs are evicted in the same transaction so the event-sourced mapping
// wins over speculative provisioning. Concurrent replaces for one room are
// serialized; either the whole new set is visible or none of it is.
func (lq *LinkQuery) ReplaceForRoom(ctx context.Context, roomID id.RoomID, links []*Link) error {
	lock := lq.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()
	return lq.GetDB().DoTxn(ctx, nil, func(ctx context.Context) error {
		if err := lq.Exec(ctx, deleteLinksByRoomIDQuery, roomID); err != nil {
			return err
		}
		for _, link := range links {
			link.RoomID = roomID
			link.Confirmed = true
			if err := lq.Exec(ctx, deleteProvisionalByChatIDQuery, link.ChatID); err != nil {
				return err
			}
			if err := lq.Exec(ctx, insertLinkQuery, link.sqlVariables()...); err != nil {
				return err
			}
		}
		return nil
	})
}

func (lq *LinkQuery) roomLock(roomID id.RoomID) *sync.Mutex {
	lock, _ := lq.roomLocks.LoadOrStore(roomID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
