// Package credentials exchanges a service-account key for short-lived access
// tokens scoped to the FCM API.
package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tinywideclouds/go-fcm-dispatch/pkg/push"
)

// MessagingScope grants permission to send through FCM.
const MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

// Config locates the service-account key.
type Config struct {
	CredentialsPath string
	// TokenURL overrides the token endpoint named in the key file.
	TokenURL string
}

// Provider performs a JWT assertion exchange on every call. Nothing is
// cached here; wrap it in a cache.CachedTokenSource for that.
type Provider struct {
	cfg    Config
	keyID  string
	logger *slog.Logger
}

// NewProvider fails fast when the key file is not there.
func NewProvider(cfg Config, logger *slog.Logger) (*Provider, error) {
	if cfg.CredentialsPath == "" {
		return nil, &push.ConfigError{Field: "credentials_path", Reason: "is required"}
	}
	data, err := os.ReadFile(cfg.CredentialsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &push.ConfigError{
				Field:  "credentials_path",
				Reason: fmt.Sprintf("file not found at %s", cfg.CredentialsPath),
			}
		}
		return nil, &push.ConfigError{Field: "credentials_path", Reason: err.Error()}
	}

	sum := sha256.Sum256(data)
	return &Provider{
		cfg:    cfg,
		keyID:  hex.EncodeToString(sum[:]),
		logger: logger.With("component", "CredentialProvider"),
	}, nil
}

// KeyID identifies the credential file contents.
func (p *Provider) KeyID() string {
	return p.keyID
}

// Token exchanges the key for a fresh access token.
func (p *Provider) Token(ctx context.Context) (*oauth2.Token, error) {
	tok, err := p.exchange(ctx)
	if err != nil {
		p.logger.Error("Failed to get Google access token", "err", err)
		return nil, &push.AuthError{Err: err}
	}
	return tok, nil
}

func (p *Provider) exchange(ctx context.Context) (*oauth2.Token, error) {
	data, err := os.ReadFile(p.cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("firebase credentials file not readable at %s: %w", p.cfg.CredentialsPath, err)
	}

	jwtCfg, err := google.JWTConfigFromJSON(data, MessagingScope)
	if err != nil {
		return nil, fmt.Errorf("invalid service account key: %w", err)
	}
	if p.cfg.TokenURL != "" {
		jwtCfg.TokenURL = p.cfg.TokenURL
	}

	tok, err := jwtCfg.TokenSource(ctx).Token()
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("token exchange returned an empty access token")
	}
	return tok, nil
}
