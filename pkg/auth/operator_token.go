package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/helios/lifecycle/pkg/config"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	ScopeRead     = "actions:read"
	ScopeWrite    = "actions:write"
	ScopeApprove  = "actions:approve"
	ScopeSchedule = "scheduler:tick"
)

// OperatorClaims identify the operator behind an API call. Subject is the
// actor recorded as createdBy, approvedBy, rejectedBy or cancelledBy.
type OperatorClaims struct {
	jwt.RegisteredClaims
	OrganizationID string `json:"organization_id,omitempty"`
	Scope          string `json:"scope"`
}

type OperatorTokenManager struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	now        func() time.Time
}

func NewOperatorTokenManager(cfg config.AuthConfig) *OperatorTokenManager {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "helios"
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &OperatorTokenManager{
		signingKey: []byte(cfg.JWTSecret),
		ttl:        ttl,
		issuer:     issuer,
		now:        time.Now,
	}
}

// GenerateToken issues a token for actor. A nil organization grants access to
// every organization.
func (m *OperatorTokenManager) GenerateToken(actor string, organizationID *uuid.UUID, scopes ...string) (string, error) {
	if strings.TrimSpace(actor) == "" {
		return "", errors.New("actor is required")
	}
	now := m.now()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   actor,
			Issuer:    m.issuer,
			ID:        uuid.NewString(),
		},
		Scope: strings.Join(scopes, ","),
	}
	if organizationID != nil {
		claims.OrganizationID = organizationID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

func (m *OperatorTokenManager) ValidateToken(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (c *OperatorClaims) HasScope(required string) bool {
	for _, scope := range strings.Split(c.Scope, ",") {
		if scope == required {
			return true
		}
	}
	return false
}

// CanAccess reports whether the token may act on organizationID.
func (c *OperatorClaims) CanAccess(organizationID uuid.UUID) bool {
	return c.OrganizationID == "" || c.OrganizationID == organizationID.String()
}
