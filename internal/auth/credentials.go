package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/gokatarajesh/exam-runner/internal/auth/jwt"
)

var ErrMissingToken = errors.New("missing bearer token")

// Credentials describe the student token forwarded to the backend.
type Credentials struct {
	Token    string
	Subject  string
	Role     string
	Username string
	Expiry   time.Time
}

// NewCredentials inspects token. Opaque tokens are accepted and keyed by a hash.
func NewCredentials(token string) (Credentials, error) {
	if token == "" {
		return Credentials{}, ErrMissingToken
	}
	creds := Credentials{Token: token}

	claims, err := jwt.Inspect(token)
	switch {
	case errors.Is(err, jwt.ErrOpaqueToken):
		creds.Subject = opaqueSubject(token)
		return creds, nil
	case err != nil:
		return Credentials{}, err
	}

	creds.Subject = claims.Subject
	if creds.Subject == "" {
		creds.Subject = opaqueSubject(token)
	}
	creds.Role = claims.RoleName()
	creds.Username = claims.Username
	creds.Expiry = claims.Expiry()
	return creds, nil
}

// Expired reports whether the token carries an expiry that has passed.
func (c Credentials) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// ExpiresBefore reports whether the token expires before t, e.g. an exam deadline.
func (c Credentials) ExpiresBefore(t time.Time) bool {
	return !c.Expiry.IsZero() && c.Expiry.Before(t)
}

// TokenSource yields the token as an oauth2 bearer token.
func (c Credentials) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: c.Token,
		TokenType:   "Bearer",
		Expiry:      c.Expiry,
	})
}

func opaqueSubject(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "opaque:" + hex.EncodeToString(sum[:8])
}

type credentialsKey struct{}

// IntoContext stores credentials for downstream handlers.
func IntoContext(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// FromContext returns the credentials set by the middleware.
func FromContext(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(credentialsKey{}).(Credentials)
	return creds, ok
}
