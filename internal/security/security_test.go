package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/roadwatch-go/internal/conf"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	settings := &conf.Settings{}
	settings.Security.JWTSecret = "test-secret"
	settings.Security.TokenTTL = time.Hour
	settings.Security.BcryptCost = 4 // MinCost keeps the tests fast
	m, err := NewManager(settings)
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewManager(&conf.Settings{})
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	hash, err := m.HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, m.CheckPassword(hash, "hunter22"))
	assert.False(t, m.CheckPassword(hash, "wrong"))
}

func TestHashPasswordRejectsShort(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	_, err := m.HashPassword("abc")
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	token, err := m.IssueToken(42, "jane@example.com", "district_authority", "Chennai")
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.Equal(t, "district_authority", claims.Role)
	assert.Equal(t, "Chennai", claims.JurisdictionArea)
}

func TestVerifyTokenRejectsTampering(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	token, err := m.IssueToken(1, "a@example.com", "citizen", "")
	require.NoError(t, err)

	_, err = m.VerifyToken(token + "x")
	assert.Error(t, err)

	other := newTestManager(t)
	other.jwtSecret = []byte("different")
	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestResetTokenSingleUse(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	token := m.IssueResetToken(7, "Jane@Example.com")

	userID, email, err := m.ConsumeResetToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), userID)
	assert.Equal(t, "jane@example.com", email)

	_, _, err = m.ConsumeResetToken(token)
	assert.Error(t, err, "tokens are single use")
}

func TestConsumeUnknownResetToken(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	_, _, err := m.ConsumeResetToken("nope")
	assert.Error(t, err)
}

func TestNewInvitationCodeFormat(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := NewInvitationCode()
		assert.Regexp(t, `^GOV-[A-Z0-9]{8}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 90, "codes are effectively unique")
}
