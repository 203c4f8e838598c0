package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/internal/metrics"
)

// OIDCConfig holds OIDC provider configuration.
type OIDCConfig struct {
	IssuerURL string // e.g. https://keycloak.example.com/realms/explorer
	ClientID  string
}

// OIDCProvider validates ID tokens from an external identity provider.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	logger   *zap.Logger
}

// NewOIDCProvider discovers the provider at cfg.IssuerURL. It returns nil
// when IssuerURL is empty (OIDC disabled).
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig, logger *zap.Logger) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	logger.Info("OIDC provider initialized",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))

	return newOIDCProvider(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), logger), nil
}

func newOIDCProvider(v *oidc.IDTokenVerifier, logger *zap.Logger) *OIDCProvider {
	return &OIDCProvider{verifier: v, logger: logger}
}

// ValidateToken verifies tokenStr as an ID token and maps it to Claims.
func (o *OIDCProvider) ValidateToken(ctx context.Context, tokenStr string) (*Claims, error) {
	idToken, err := o.verifier.Verify(ctx, tokenStr)
	if err != nil {
		metrics.RecordAuthAttempt("oidc", false)
		return nil, err
	}

	var oidcClaims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&oidcClaims); err != nil {
		metrics.RecordAuthAttempt("oidc", false)
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}

	// Prefer preferred_username, then email, then sub.
	username := oidcClaims.PreferredUsername
	if username == "" {
		username = oidcClaims.Email
	}
	if username == "" {
		username = oidcClaims.Sub
	}

	metrics.RecordAuthAttempt("oidc", true)
	o.logger.Debug("Accepted OIDC token", zap.String("username", username))
	return &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: oidcClaims.Sub,
			Issuer:  idToken.Issuer,
		},
	}, nil
}
