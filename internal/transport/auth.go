package transport

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/karani/internal/config"
	"github.com/pitabwire/karani/model"
)

// Authenticator verifies HMAC-signed bearer tokens issued by the identity
// provider and stores the verified claims in the request context.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator creates an Authenticator from identity configuration.
// The signing secret is read from the environment variable named by
// cfg.SecretEnv.
func NewAuthenticator(cfg config.IdentityConfig) (*Authenticator, error) {
	secret := os.Getenv(cfg.SecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("auth: environment variable %s is empty", cfg.SecretEnv)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
	)

	return &Authenticator{
		secret: []byte(secret),
		parser: parser,
	}, nil
}

// Middleware rejects requests without a valid bearer token and stashes the
// verified claims for BuildRequestContext.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			WriteError(w, model.NewUnauthorizedError("missing bearer token"))
			return
		}

		claims := jwt.MapClaims{}
		_, err := a.parser.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
			return a.secret, nil
		})
		if err != nil {
			WriteError(w, model.NewUnauthorizedError("invalid bearer token"))
			return
		}

		ctx := WithClaims(r.Context(), map[string]any(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return h[len(prefix):], true
}
