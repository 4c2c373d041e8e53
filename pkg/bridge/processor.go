// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// Event types the processor recognizes. Anything else lands in the default
// arm of the dispatch switch and is counted as ignored.
const (
	EventTypeRoomAliases = "m.room.aliases"
	EventTypeMessage     = "m.room.message"
)

const defaultTransactionCacheSize = 1024

// ErrStoreFailure marks handler errors caused by the link store itself.
// They abort the whole transaction and withhold the acknowledgement so the
// homeserver redelivers; nothing was committed, so redelivery is safe.
var ErrStoreFailure = errors.New("link store failure")

// WireEvent is one event of a homeserver transaction as it appears on the
// wire. Content stays raw until a handler knows how to decode it.
type WireEvent struct {
	Type    string          `json:"type"`
	RoomID  id.RoomID       `json:"room_id"`
	Content json.RawMessage `json:"content"`
}

// Transaction is a batched delivery of events pushed by the homeserver. The
// ID comes from the request path, not the body.
type Transaction struct {
	ID     string       `json:"-"`
	Events []*WireEvent `json:"events"`
}

// Report summarizes one processed transaction.
type Report struct {
	Handled int
	Ignored int
	Failed  int
}

// TransactionProcessor dispatches homeserver transaction events to their
// per-kind handlers and remembers recently seen transaction IDs so
// redeliveries are acknowledged without double-processing.
type TransactionProcessor struct {
	aliases *AliasSyncHandler
	log     zerolog.Logger

	// seen and inflight are both guarded by inflightLock so the dedup
	// check and the in-flight registration are one atomic step.
	inflightLock sync.Mutex
	seen         *lru.Cache[string, struct{}]
	inflight     map[string]struct{}
}

func NewTransactionProcessor(cfg *Config, store LinkStore, log zerolog.Logger) (*TransactionProcessor, error) {
	size := cfg.Bridge.TransactionCacheSize
	if size <= 0 {
		size = defaultTransactionCacheSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &TransactionProcessor{
		aliases:  NewAliasSyncHandler(cfg, store, log),
		seen:     seen,
		inflight: make(map[string]struct{}),
		log:      log.With().Str("component", "transactions").Logger(),
	}, nil
}

// Process runs every event of a transaction strictly in arrival order.
// Unknown event kinds and per-event handler failures never abort the batch;
// only a store failure does, because in that case nothing was committed and
// homeserver redelivery is the correct recovery. A transaction ID is marked
// seen only after the whole batch has been attempted, so an aborted
// transaction is reprocessed in full on redelivery. Concurrent deliveries of
// the same ID are serialized through the in-flight set: exactly one of them
// processes, the rest are acknowledged as duplicates.
func (tp *TransactionProcessor) Process(ctx context.Context, txn *Transaction) (Report, error) {
	if txn.ID != "" {
		if !tp.beginTransaction(txn.ID) {
			tp.log.Debug().
				Str("transaction_id", txn.ID).
				Int("events", len(txn.Events)).
				Msg("Skipping already-processed transaction")
			return Report{Ignored: len(txn.Events)}, nil
		}
	}
	report, err := tp.processEvents(ctx, txn)
	if txn.ID != "" {
		tp.endTransaction(txn.ID, err == nil)
	}
	return report, err
}

// beginTransaction atomically checks the seen cache and registers the ID as
// in flight. It reports false when the transaction was already processed or
// is currently being processed on another goroutine.
func (tp *TransactionProcessor) beginTransaction(id string) bool {
	tp.inflightLock.Lock()
	defer tp.inflightLock.Unlock()
	if _, dup := tp.seen.Get(id); dup {
		return false
	}
	if _, dup := tp.inflight[id]; dup {
		return false
	}
	tp.inflight[id] = struct{}{}
	return true
}

func (tp *TransactionProcessor) endTransaction(id string, processed bool) {
	tp.inflightLock.Lock()
	defer tp.inflightLock.Unlock()
	delete(tp.inflight, id)
	if processed {
		tp.seen.Add(id, struct{}{})
	}
}

func (tp *TransactionProcessor) processEvents(ctx context.Context, txn *Transaction) (Report, error) {
	var report Report
	for _, evt := range txn.Events {
		if evt == nil {
			// A literal null in the events array decodes to a nil event.
			report.Failed++
			tp.log.Warn().Str("transaction_id", txn.ID).Msg("Skipping null event in transaction")
			continue
		}
		switch evt.Type {
		case EventTypeRoomAliases:
			err := tp.aliases.Handle(ctx, evt)
			switch {
			case err == nil:
				report.Handled++
			case errors.Is(err, ErrStoreFailure):
				return report, err
			default:
				report.Failed++
				tp.log.Warn().Err(err).
					Str("event_type", evt.Type).
					Str("room_id", evt.RoomID.String()).
					Msg("Event handler failed")
			}
		case EventTypeMessage:
			// Message relay is not part of this core.
			report.Ignored++
		default:
			tp.log.Trace().Str("event_type", evt.Type).Msg("Unhandled event type")
			report.Ignored++
		}
	}
	return report, nil
}
