package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/NAHIAN-19/project-planner/logging"
	"github.com/NAHIAN-19/project-planner/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller, taken from the token claims.
type Identity struct {
	UserID   string
	Username string
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// JWTAuth rejects requests without a valid bearer token. When allowQuery is set, a token passed
// as the "token" query parameter is accepted too, for clients that cannot set headers on a
// websocket handshake.
func JWTAuth(secret []byte, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" && allowQuery {
				tokenStr = r.URL.Query().Get("token")
			}
			if tokenStr == "" {
				logging.Logger.Warnf("Event ID: JWT_AUTH_MISSING_TOKEN, Description: Token missing for request to %s %s", r.Method, r.URL.Path)
				writeUnauthorized(w, "Authorization header missing")
				return
			}

			claims, err := utils.ValidateToken(secret, tokenStr)
			if err != nil {
				logging.Logger.Warnf("Event ID: JWT_AUTH_INVALID_TOKEN, Description: Invalid token provided for request to %s %s: %v", r.Method, r.URL.Path, err)
				writeUnauthorized(w, "Invalid token")
				return
			}

			logging.Logger.Debugf("Event ID: JWT_AUTH_SUCCESS, Description: Token validated for user %s on %s %s", claims.UserID, r.Method, r.URL.Path)
			ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID, Username: claims.Username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		logging.Logger.Warnf("Event ID: JWT_AUTH_BEARER_PREFIX_MISSING, Description: Bearer prefix missing in Authorization header for request to %s %s", r.Method, r.URL.Path)
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"status":"error","message":"` + message + `"}`))
}
