// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-telegram/pkg/bridge/database"
)

// errStoreDown simulates an unreachable database in store failure tests.
var errStoreDown = errors.New("store is down")

// memoryLinkStore is an in-memory LinkStore with the same semantics as the
// real one: confirmed links win lookups, ReplaceForRoom swaps the full set
// and evicts conflicting provisional links atomically. Like a real database
// it refuses to run on a context that is already done.
type memoryLinkStore struct {
	mu    sync.Mutex
	links []*database.Link

	// fail makes every mutation and lookup return errStoreDown.
	fail bool

	replaceCalls     int
	provisionalCalls int
}

func newMemoryLinkStore() *memoryLinkStore {
	return &memoryLinkStore{}
}

func (s *memoryLinkStore) GetByChatID(ctx context.Context, chatID string) (*database.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	var provisional *database.Link
	for _, link := range s.links {
		if link.ChatID != chatID {
			continue
		}
		if link.Confirmed {
			return link, nil
		}
		provisional = link
	}
	return provisional, nil
}

func (s *memoryLinkStore) GetByRoomID(ctx context.Context, roomID id.RoomID) ([]*database.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	var out []*database.Link
	for _, link := range s.links {
		if link.RoomID == roomID {
			out = append(out, link)
		}
	}
	return out, nil
}

func (s *memoryLinkStore) ReplaceForRoom(ctx context.Context, roomID id.RoomID, links []*database.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	s.replaceCalls++
	incoming := make(map[string]struct{}, len(links))
	for _, link := range links {
		incoming[link.ChatID] = struct{}{}
	}
	var kept []*database.Link
	for _, link := range s.links {
		if link.RoomID == roomID {
			continue
		}
		if _, conflict := incoming[link.ChatID]; conflict && !link.Confirmed {
			continue
		}
		kept = append(kept, link)
	}
	for _, link := range links {
		kept = append(kept, &database.Link{RoomID: roomID, ChatID: link.ChatID, Confirmed: true})
	}
	s.links = kept
	return nil
}

func (s *memoryLinkStore) InsertProvisional(ctx context.Context, roomID id.RoomID, chatID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errStoreDown
	}
	s.provisionalCalls++
	s.links = append(s.links, &database.Link{RoomID: roomID, ChatID: chatID})
	return nil
}

func (s *memoryLinkStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

var _ LinkStore = (*memoryLinkStore)(nil)

// fakeRoomCreator records provisioning calls and returns canned results.
type fakeRoomCreator struct {
	mu         sync.Mutex
	localparts []string

	roomID id.RoomID
	err    error

	// onCreate, if set, runs during CreateRoom. Lets tests cancel the
	// request context mid-provisioning.
	onCreate func()
}

func (f *fakeRoomCreator) CreateRoom(_ context.Context, aliasLocalpart string) (id.RoomID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCreate != nil {
		f.onCreate()
	}
	if f.err != nil {
		return "", f.err
	}
	f.localparts = append(f.localparts, aliasLocalpart)
	if f.roomID != "" {
		return f.roomID, nil
	}
	return "!new:example.com", nil
}

func (f *fakeRoomCreator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]string, len(f.localparts))
	copy(cp, f.localparts)
	return cp
}

// fakeChatChecker answers ChatExists from a fixed set.
type fakeChatChecker struct {
	existing map[string]bool
	err      error
}

func (f *fakeChatChecker) ChatExists(_ context.Context, chatID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.existing[chatID], nil
}

// newTestConfig returns a config with the fields the core reads in tests.
func newTestConfig() *Config {
	return &Config{
		Homeserver: HomeserverConfig{
			Address: "https://matrix.example.com",
			Domain:  "example.com",
		},
		Appservice: AppserviceConfig{
			ListenAddr:  ":29317",
			ASToken:     "as-token",
			HSToken:     "hs-secret",
			BotUsername: "telegrambot",
		},
		Bridge: BridgeConfig{
			AliasPrefix:          "telegram",
			TransactionCacheSize: 16,
		},
	}
}

// newTestAppService wires an AppService from test fakes.
func newTestAppService(store LinkStore, creator RoomCreator, checker ChatChecker) *AppService {
	as, err := NewAppService(newTestConfig(), store, creator, checker, zerolog.Nop())
	if err != nil {
		panic(err)
	}
	return as
}
