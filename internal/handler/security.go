package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// Security authenticates requests by API key. Keys are stored as
// HMAC-SHA256 under a server-side pepper, never in plain text.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity returns a Security looking keys up in apikeys.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

// Authenticate resolves key to the principal it was issued for.
func (s *Security) Authenticate(r *http.Request, key string) (auth.Principal, error) {
	if key == "" {
		return auth.Principal{}, errUnauthenticated
	}
	hash := auth.HashKey(s.pepper, key)
	info, err := s.apikeys.FindByHash(r.Context(), hash)
	if err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			return auth.Principal{}, errUnauthenticated
		}
		return auth.Principal{}, errors.Wrap(err, "find api key")
	}

	// The lookup matched on the hash already; comparing the decoded bytes
	// in constant time keeps a misbehaving store from admitting a
	// different key.
	want, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return auth.Principal{}, errUnauthenticated
	}
	got, _ := hex.DecodeString(hash)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return auth.Principal{}, errUnauthenticated
	}
	if !info.Role.Valid() {
		return auth.Principal{}, errUnauthenticated
	}
	return info.Principal(), nil
}

// Middleware rejects unauthenticated requests with 401 and stores the
// principal in the request context.
func (s *Security) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Authenticate(r, r.Header.Get(APIKeyHeader))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("user_id", p.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
