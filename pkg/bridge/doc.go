// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bridge implements the alias-resolution and event-dispatch core of
// a Matrix-Telegram appservice: the rules that decide whether an alias or
// event belongs to this bridge, the persistent room↔chat link mapping, and
// transaction processing that tolerates duplicated deliveries, unknown event
// kinds and partial failures.
//
// # Core Types
//
// [AppService] is the inbound HTTP surface the homeserver pushes to. It
// serves room alias lookups (GET /rooms/{alias}) and transaction batches
// (PUT /transactions/{txnID}), both guarded by the shared hs_token.
//
// [RoomResolver] turns an alias lookup into a decision: not ours, already
// linked, or should provision. It never creates rooms itself; the AppService
// turns a provisioning decision into a [RoomCreator] call and records the
// result as a provisional link.
//
// [TransactionProcessor] runs each event of a transaction in order through a
// per-kind dispatch switch, reports handled/ignored/failed counts, and
// deduplicates redelivered transaction IDs with a bounded cache. A batch is
// acknowledged even when individual events fail; only a link store failure
// withholds the acknowledgement so the homeserver retries.
//
// [AliasSyncHandler] keeps the link store in sync with m.room.aliases events
// by replacing a room's full link set atomically.
//
// # Sub-packages
//
//   - database holds the chat_link store built on go.mau.fi/util/dbutil.
package bridge
