package auth

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

type identityKey struct{}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the authenticated caller, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Caller returns the authenticated caller address.
func Caller(ctx context.Context) (common.Address, bool) {
	id, ok := FromContext(ctx)
	return id.Address, ok
}

// Middleware attaches the identity of a valid bearer token. Requests without
// one pass through anonymously; an invalid token is rejected.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearer(r.Header.Get("Authorization"))
		if tok == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := s.Verify(tok)
		if err != nil {
			utilities.WriteMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Required rejects anonymous requests.
func Required(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			utilities.WriteMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// OperatorOnly rejects callers without the operator claim.
func OperatorOnly(next http.HandlerFunc) http.HandlerFunc {
	return Required(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := FromContext(r.Context()); !id.Operator {
			utilities.WriteMessage(w, http.StatusForbidden, "operator only")
			return
		}
		next(w, r)
	})
}
