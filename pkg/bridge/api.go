// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// Error codes returned by the appservice endpoints. M_FORBIDDEN is the
// standard homeserver code for a bad token; the others are vendor-namespaced.
const (
	errCodeForbidden    = "M_FORBIDDEN"
	errCodeUnauthorized = "COM.AIKU.TELEGRAM_UNAUTHORIZED"
	errCodeNotFound     = "COM.AIKU.TELEGRAM_NOT_FOUND"
	errCodeNotJSON      = "M_NOT_JSON"
	errCodeTooLarge     = "M_TOO_LARGE"
	errCodeUnknown      = "M_UNKNOWN"
)

// maxTransactionBodySize caps inbound transaction bodies (10 MB).
const maxTransactionBodySize = 10 << 20

// AppService is the inbound HTTP surface the homeserver pushes to: room alias
// lookups and transaction batches.
type AppService struct {
	config    *Config
	resolver  *RoomResolver
	processor *TransactionProcessor
	store     LinkStore
	creator   RoomCreator
	checker   ChatChecker // optional
	log       zerolog.Logger
}

func NewAppService(cfg *Config, store LinkStore, creator RoomCreator, checker ChatChecker, log zerolog.Logger) (*AppService, error) {
	processor, err := NewTransactionProcessor(cfg, store, log)
	if err != nil {
		return nil, err
	}
	return &AppService{
		config:    cfg,
		resolver:  NewRoomResolver(cfg, store, log),
		processor: processor,
		store:     store,
		creator:   creator,
		checker:   checker,
		log:       log.With().Str("component", "appservice").Logger(),
	}, nil
}

// Handler returns the HTTP handler serving the appservice endpoints.
func (as *AppService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{alias}", as.HandleRoomLookup)
	mux.HandleFunc("PUT /transactions/{txnID}", as.HandleTransaction)
	return mux
}

func respondJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func respondErrCode(w http.ResponseWriter, code int, errcode string) {
	respondJSON(w, code, map[string]string{"errcode": errcode})
}

// authorize runs the access guard for a request and writes the error response
// itself when the check fails. A missing token and a wrong token are distinct
// outcomes and must never be conflated.
func (as *AppService) authorize(w http.ResponseWriter, r *http.Request) bool {
	result := Authorize(TokenFromRequest(r), as.config.Appservice.HSToken)
	switch result {
	case AuthMissingToken:
		respondErrCode(w, http.StatusUnauthorized, errCodeUnauthorized)
	case AuthWrongToken:
		respondErrCode(w, http.StatusForbidden, errCodeForbidden)
	case AuthGranted:
		return true
	}
	as.log.Debug().
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Stringer("result", result).
		Msg("Rejected request")
	return false
}

// HandleRoomLookup serves GET /rooms/{alias}: does a room exist for this
// alias, and if not, should one be created.
func (as *AppService) HandleRoomLookup(w http.ResponseWriter, r *http.Request) {
	if !as.authorize(w, r) {
		return
	}
	aliasString := r.PathValue("alias")
	res, err := as.resolver.Resolve(r.Context(), aliasString)
	if err != nil {
		as.log.Error().Err(err).Str("alias", aliasString).Msg("Alias resolution failed")
		respondErrCode(w, http.StatusInternalServerError, errCodeUnknown)
		return
	}
	switch res.Kind {
	case ResolutionNotOurs:
		respondErrCode(w, http.StatusNotFound, errCodeNotFound)
	case ResolutionAlreadyLinked:
		respondJSON(w, http.StatusOK, struct{}{})
	case ResolutionShouldProvision:
		as.provision(w, r, res)
	}
}

// provision carries out a ShouldProvision decision: verify the chat exists,
// create the room and record the speculative link.
func (as *AppService) provision(w http.ResponseWriter, r *http.Request, res Resolution) {
	ctx := r.Context()
	if as.checker != nil {
		exists, err := as.checker.ChatExists(ctx, res.ChatID)
		if err != nil {
			as.log.Error().Err(err).Str("chat_id", res.ChatID).Msg("Remote chat check failed")
			respondErrCode(w, http.StatusInternalServerError, errCodeUnknown)
			return
		}
		if !exists {
			respondErrCode(w, http.StatusNotFound, errCodeNotFound)
			return
		}
	}

	roomID, err := as.creator.CreateRoom(ctx, res.AliasLocalpart)
	if err != nil {
		as.log.Error().Err(err).Str("alias_localpart", res.AliasLocalpart).Msg("Room provisioning failed")
		respondErrCode(w, http.StatusInternalServerError, errCodeUnknown)
		return
	}

	// The link must be recorded even if the caller has gone away by now;
	// the room already exists on the homeserver.
	if err = as.store.InsertProvisional(context.WithoutCancel(ctx), roomID, res.ChatID); err != nil {
		as.log.Error().Err(err).
			Str("room_id", roomID.String()).
			Str("chat_id", res.ChatID).
			Msg("Failed to record provisional link")
		respondErrCode(w, http.StatusInternalServerError, errCodeUnknown)
		return
	}

	as.log.Info().
		Str("room_id", roomID.String()).
		Str("chat_id", res.ChatID).
		Str("alias_localpart", res.AliasLocalpart).
		Msg("Linked new room to chat")
	respondJSON(w, http.StatusOK, struct{}{})
}

// HandleTransaction serves PUT /transactions/{txnID}. The batch is
// acknowledged with 200 once fully attempted, regardless of per-event
// failures: the homeserver's retry contract is at transaction granularity,
// and retrying a whole transaction over one event would redeliver the rest
// unboundedly. Only a store failure withholds the acknowledgement.
func (as *AppService) HandleTransaction(w http.ResponseWriter, r *http.Request) {
	if !as.authorize(w, r) {
		return
	}
	txnID := r.PathValue("txnID")

	r.Body = http.MaxBytesReader(w, r.Body, maxTransactionBodySize)
	var txn Transaction
	if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			as.log.Warn().Str("transaction_id", txnID).Msg("Transaction body exceeds size cap")
			respondErrCode(w, http.StatusRequestEntityTooLarge, errCodeTooLarge)
			return
		}
		as.log.Warn().Err(err).Str("transaction_id", txnID).Msg("Failed to decode transaction")
		respondErrCode(w, http.StatusBadRequest, errCodeNotJSON)
		return
	}
	txn.ID = txnID

	// Detach from the request lifetime so a homeserver disconnect cannot
	// abort mid-flight store commits.
	report, err := as.processor.Process(context.WithoutCancel(r.Context()), &txn)
	if err != nil {
		as.log.Error().Err(err).Str("transaction_id", txnID).Msg("Transaction aborted")
		respondErrCode(w, http.StatusInternalServerError, errCodeUnknown)
		return
	}

	as.log.Debug().
		Str("transaction_id", txnID).
		Int("handled", report.Handled).
		Int("ignored", report.Ignored).
		Int("failed", report.Failed).
		Msg("Transaction acknowledged")
	respondJSON(w, http.StatusOK, struct{}{})
}
