package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios/lifecycle/pkg/config"
)

func newManager() *OperatorTokenManager {
	return NewOperatorTokenManager(config.AuthConfig{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
		Issuer:    "helios-test",
	})
}

func TestGenerateAndValidate(t *testing.T) {
	m := newManager()
	org := uuid.New()

	token, err := m.GenerateToken("admin@example.com", &org, ScopeRead, ScopeApprove)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Subject)
	assert.True(t, claims.HasScope(ScopeApprove))
	assert.False(t, claims.HasScope(ScopeWrite))
	assert.True(t, claims.CanAccess(org))
	assert.False(t, claims.CanAccess(uuid.New()))
}

func TestGlobalTokenAccessesEveryOrganization(t *testing.T) {
	m := newManager()
	token, err := m.GenerateToken("ops", nil, ScopeSchedule)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.CanAccess(uuid.New()))
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m := newManager()
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := m.GenerateToken("admin@example.com", nil)
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	other := NewOperatorTokenManager(config.AuthConfig{JWTSecret: "other", Issuer: "helios-test"})
	token, err := other.GenerateToken("admin@example.com", nil)
	require.NoError(t, err)

	_, err = newManager().ValidateToken(token)
	assert.Error(t, err)
}

func TestGenerateRequiresActor(t *testing.T) {
	_, err := newManager().GenerateToken("  ", nil)
	assert.Error(t, err)
}
