package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/exam-runner/pkg/http/errors"
)

// BearerToken extracts the token from "Authorization: Bearer <token>", falling
// back to the token query parameter used by WebSocket clients.
func BearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// RequireBearer rejects requests without a usable student token and injects
// Credentials into the request context.
func RequireBearer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return requireBearer(logger, time.Now)
}

func requireBearer(logger zerolog.Logger, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
				return
			}

			creds, err := NewCredentials(token)
			if err != nil {
				logger.Warn().Err(err).Msg("token inspection failed")
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid token")
				return
			}
			if creds.Expired(now()) {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeTokenExpired, "Token expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(IntoContext(r.Context(), creds)))
		})
	}
}
