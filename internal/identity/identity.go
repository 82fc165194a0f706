// Package identity adapts the external identity provider contract: it
// validates bearer tokens and resolves them to stable user identifiers.
// Token issuance happens upstream; this side only verifies.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/middleware"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// LoginRecorder receives activity stamps on successful validation; the
// aggregation reporter reads them back as the active-user count.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, userID domain.UserID, at time.Time) error
}

type Validator struct {
	signingKey []byte
	activity   LoginRecorder
	logger     *slog.Logger
}

type Option func(*Validator)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// WithLoginRecorder enables last-login tracking. Recording failures are
// logged and swallowed; authentication never depends on the tracker.
func WithLoginRecorder(recorder LoginRecorder) Option {
	return func(v *Validator) { v.activity = recorder }
}

func New(signingKey string, opts ...Option) *Validator {
	v := &Validator{
		signingKey: []byte(signingKey),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateToken verifies the HMAC signature and expiry, returning the
// claims the middleware needs.
func (v *Validator) ValidateToken(tokenString string) (*middleware.Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, err := domain.ParseUserID(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("token role: %w", err)
	}

	if v.activity != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := v.activity.RecordLogin(ctx, userID, time.Now()); err != nil {
			v.logger.Warn("failed to record login activity", "error", err)
		}
	}

	return &middleware.Claims{UserID: userID, Role: role}, nil
}

// IssueToken mints a development token. Production tokens come from the
// identity provider; this exists for local testing and the e2e harness.
func (v *Validator) IssueToken(userID domain.UserID, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(v.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
