package middleware

import (
	"context"
	"net/http"
	"strings"

	"opsline/pkg/auth"
	"opsline/pkg/logger"
)

const IdentityKey contextKey = "identity"

// Auth verifies the bearer credential on every request and attaches the
// caller's identity to the request context. Requests without a valid token
// never reach the handlers.
func Auth(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				rejectUnauthorized(w, log, r, "Missing Authorization header")
				return
			}

			identity, err := auth.Verify(secret, token)
			if err != nil {
				rejectUnauthorized(w, log, r, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom returns the authenticated identity attached by Auth.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(auth.Identity)
	return identity, ok
}

// BearerToken returns the raw credential from the Authorization header, for
// services that forward the caller's token to a downstream API.
func BearerToken(r *http.Request) string {
	return extractBearerToken(r)
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return token
}

func rejectUnauthorized(w http.ResponseWriter, log *logger.Logger, r *http.Request, reason string) {
	log.Warn("Request authentication failed",
		"request_id", RequestID(r.Context()),
		"reason", reason,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
}
