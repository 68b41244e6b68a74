package auth

import (
	"context"
	"log/slog"
	"net/http"
	"study-relay/domain"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// Middleware rejects requests without a valid identity and injects the user
// id into the request context for the handlers.
func Middleware(log *slog.Logger, verifier *Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := verifier.Authenticate(r)
		if err != nil {
			log.Debug("Request rejected", "path", r.URL.Path, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserIDKey, userID)))
	})
}

func UserIDFromContext(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(UserIDKey).(domain.UserID)
	return userID, ok
}
