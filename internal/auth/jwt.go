// Package auth guards the namespace API with bearer tokens.
//
// Tokens are HS256 JWTs issued by POST /auth/token against a single admin
// account whose password is stored as a bcrypt hash. An OIDC provider can
// be configured as a second accepted token source. With no signing secret
// the guard is disabled and every request passes.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fruitsalade/explorer/internal/metrics"
	"github.com/fruitsalade/explorer/pkg/protocol"
)

const issuer = "explorer"

var ErrInvalidCredentials = errors.New("invalid credentials")

type contextKey string

const userContextKey contextKey = "user"

// Claims holds JWT token claims.
type Claims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Config configures Auth.
type Config struct {
	Secret            string
	TTL               time.Duration
	AdminUsername     string
	AdminPasswordHash string
	Logger            *zap.Logger
}

// Auth issues and validates tokens.
type Auth struct {
	secret    []byte
	ttl       time.Duration
	adminUser string
	adminHash []byte
	oidc      *OIDCProvider
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an Auth. An empty secret disables authentication.
func New(cfg Config) *Auth {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Auth{
		secret:    []byte(cfg.Secret),
		ttl:       cfg.TTL,
		adminUser: cfg.AdminUsername,
		adminHash: []byte(cfg.AdminPasswordHash),
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Enabled reports whether tokens are required.
func (a *Auth) Enabled() bool {
	return len(a.secret) > 0
}

// SetOIDCProvider adds an OIDC provider as an accepted token source.
func (a *Auth) SetOIDCProvider(p *OIDCProvider) {
	a.oidc = p
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Login checks the admin credentials and issues a token.
func (a *Auth) Login(username, password string) (string, time.Time, error) {
	if !a.Enabled() || len(a.adminHash) == 0 || username != a.adminUser {
		metrics.RecordAuthAttempt("password", false)
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.adminHash, []byte(password)); err != nil {
		metrics.RecordAuthAttempt("password", false)
		return "", time.Time{}, ErrInvalidCredentials
	}
	metrics.RecordAuthAttempt("password", true)
	return a.Issue(username, true)
}

// Issue signs a token for username.
func (a *Auth) Issue(username string, isAdmin bool) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.ttl)
	claims := &Claims{
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, exp, nil
}

// Validate parses a locally issued token.
func (a *Auth) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Middleware returns HTTP middleware that requires a valid token, trying
// the local signature first and then OIDC.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		tokenStr := extractToken(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt("bearer", false)
			sendAuthError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := a.Validate(tokenStr)
		if err != nil && a.oidc != nil {
			claims, err = a.oidc.ValidateToken(r.Context(), tokenStr)
		}
		if err != nil {
			metrics.RecordAuthAttempt("bearer", false)
			a.logger.Debug("Rejected token", zap.Error(err))
			sendAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(userContextKey).(*Claims)
	return claims
}

// HandleLogin handles POST /auth/token.
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.Enabled() {
		sendAuthError(w, http.StatusNotFound, "authentication is disabled")
		return
	}

	var req protocol.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		sendAuthError(w, http.StatusBadRequest, "username and password required")
		return
	}

	tokenStr, exp, err := a.Login(req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		a.logger.Warn("Login failed", zap.String("username", req.Username))
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		sendAuthError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	a.logger.Info("Issued token", zap.String("username", req.Username), zap.Time("expires_at", exp))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.LoginResponse{Token: tokenStr, ExpiresAt: exp.Unix()})
}

func extractToken(r *http.Request) string {
	// Bearer token from Authorization header
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// EventSource cannot set headers, so SSE clients may use the query.
	return r.URL.Query().Get(protocol.ParamToken)
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
