package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jupiterclapton/postfeed/internal/core/domain"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

// Private context key type, avoids collisions.
type contextKey struct{ name string }

var identityCtxKey = &contextKey{"identity"}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
}

// Validator verifies bearer tokens. ports.IdentityService satisfies it.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (*ports.TokenClaims, error)
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey).(Identity)
	return id, ok && id.UserID != ""
}

// ForContext returns the authenticated user id, or "" for anonymous requests.
func ForContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

// RequireUser returns the user id or domain.ErrUnauthenticated.
func RequireUser(ctx context.Context) (string, error) {
	if id := ForContext(ctx); id != "" {
		return id, nil
	}
	return "", domain.ErrUnauthenticated
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", domain.ErrUnauthenticated
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", domain.ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

// Authenticate verifies a raw Authorization header value.
func Authenticate(ctx context.Context, v Validator, header string) (Identity, error) {
	token, err := BearerToken(header)
	if err != nil {
		return Identity{}, err
	}
	claims, err := v.ValidateToken(ctx, token)
	if err != nil {
		return Identity{}, domain.ErrInvalidToken
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// Middleware decodes the Authorization header for net/http handlers.
// Requests without the header pass through anonymously; a present but invalid header gets a 401.
func Middleware(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			// 1. Public operations (createUser, login) carry no header
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			// 2. Verify
			id, err := Authenticate(r.Context(), v, header)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}

			// 3. Inject the identity for resolvers
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := domain.ErrUnauthenticated.Message
	if de, ok := err.(*domain.Error); ok {
		msg = de.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": msg,
		"code":    http.StatusUnauthorized,
	})
}
