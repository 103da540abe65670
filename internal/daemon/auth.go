package daemon

import (
	"net/http"
	"strings"

	"caseflow/internal/config"
)

// anonymousUser is the identity assigned when no tokens are
// configured. Meant for local single-user setups.
const anonymousUser = "default"

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

// authMiddleware resolves the bearer token to a user id. With no
// tokens configured every request runs as the anonymous user;
// otherwise requests without a known token are rejected with 401.
func authMiddleware(cfg *config.Config, next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(cfg.Auth.Tokens) == 0 {
			next(w, r, anonymousUser)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		userID, ok := cfg.UserForToken(strings.TrimPrefix(auth, "Bearer "))
		if !ok {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	}
}
