package admin

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// actorContextKey is the context key type for the authenticated actor label.
type actorContextKey struct{}

// isLocalhost checks if the request originates from a loopback address.
// It parses the host portion from r.RemoteAddr and checks for 127.0.0.1,
// ::1, or localhost. X-Forwarded-For is intentionally NOT trusted for
// security (an attacker could spoof it).
func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port (unlikely with net/http, but be safe).
		host = r.RemoteAddr
	}
	return host == "127.0.0.1" || host == "::1" || host == "localhost"
}

// authMiddleware enforces API key authentication. A valid Bearer key is
// always accepted and its label becomes the audit actor. Without a key,
// localhost requests are accepted with actor "localhost"; remote
// requests are rejected — use SSH tunnel or configure api_keys.
func (h *APIHandler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rawKey, ok := bearerToken(r); ok && h.keyring != nil {
			label, err := h.keyring.Validate(rawKey)
			if err != nil {
				h.respondError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			ctx := context.WithValue(r.Context(), actorContextKey{}, label)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if isLocalhost(r) {
			next.ServeHTTP(w, r)
			return
		}

		h.respondError(w, http.StatusUnauthorized, "API requires an API key or localhost access")
	})
}

// bearerToken extracts the Bearer token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	return token, token != ""
}

// actor returns the audit actor label for the request: the validated
// API key label, an explicit X-Actor header, or "localhost".
func (h *APIHandler) actor(r *http.Request) string {
	if label, ok := r.Context().Value(actorContextKey{}).(string); ok && label != "" {
		return label
	}
	if hdr := strings.TrimSpace(r.Header.Get("X-Actor")); hdr != "" {
		return hdr
	}
	return "localhost"
}
