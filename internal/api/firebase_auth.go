package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
)

// IDTokenVerifier is satisfied by *auth.Client.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// NewFirebaseAuthMiddleware authenticates requests carrying a Firebase ID
// token and stores urn:<namespace>:user:<uid> as the caller identity.
func NewFirebaseAuthMiddleware(verifier IDTokenVerifier, namespace string, logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With("component", "FirebaseAuth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idToken, ok := bearerToken(r)
			if !ok {
				response.WriteJSONError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			token, err := verifier.VerifyIDToken(r.Context(), idToken)
			if err != nil {
				log.Warn("ID token rejected", "err", err)
				response.WriteJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			userID := fmt.Sprintf("urn:%s:user:%s", namespace, token.UID)
			ctx := middleware.ContextWithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
