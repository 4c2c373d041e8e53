// Copyright 2024-2026 Aiku AI

package bridge

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthResult classifies an inbound credential check.
type AuthResult int

const (
	AuthGranted AuthResult = iota
	AuthMissingToken
	AuthWrongToken
)

func (r AuthResult) String() string {
	switch r {
	case AuthGranted:
		return "granted"
	case AuthMissingToken:
		return "missing token"
	case AuthWrongToken:
		return "wrong token"
	default:
		return "unknown"
	}
}

// Authorize checks a caller-supplied homeserver token against the configured
// hs_token. A missing token is a distinct outcome from a wrong one so the API
// layer can surface different error codes. The comparison is constant-time;
// the token is a bridge-wide shared secret.
func Authorize(provided, expected string) AuthResult {
	if provided == "" {
		return AuthMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return AuthWrongToken
	}
	return AuthGranted
}

// TokenFromRequest extracts the homeserver token from an inbound request.
// The Authorization header takes precedence; otherwise the first access_token
// query value is used, even when several are supplied.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}
