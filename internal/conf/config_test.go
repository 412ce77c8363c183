package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestSettings() *Settings {
	s := &Settings{}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = "roadwatch.db"
	s.Security.JWTSecret = "test-secret"
	s.Dedup.RadiusMeters = 30
	return s
}

func TestValidateSettingsRequiresStore(t *testing.T) {
	t.Parallel()

	s := validTestSettings()
	s.Output.SQLite.Enabled = false
	s.Output.MySQL.Enabled = false

	err := validateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registry store enabled")
}

func TestValidateSettingsRequiresJWTSecret(t *testing.T) {
	t.Parallel()

	s := validTestSettings()
	s.Security.JWTSecret = ""
	s.Security.JWTSecretFile = ""

	err := validateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "security.jwtsecret")
}

func TestValidateSettingsExpandsJWTSecret(t *testing.T) {
	t.Setenv("ROADWATCH_TEST_JWT", "expanded-secret")

	s := validTestSettings()
	s.Security.JWTSecret = "${ROADWATCH_TEST_JWT}"

	require.NoError(t, validateSettings(s))
	assert.Equal(t, "expanded-secret", s.Security.JWTSecret)
}

func TestValidateSettingsSecretFileWins(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jwt.secret")
	require.NoError(t, os.WriteFile(path, []byte("file-secret\n"), 0o600))

	s := validTestSettings()
	s.Security.JWTSecret = "inline-secret"
	s.Security.JWTSecretFile = path

	require.NoError(t, validateSettings(s))
	assert.Equal(t, "file-secret", s.Security.JWTSecret)
}

func TestValidateSettingsDefaultsDedupRadius(t *testing.T) {
	t.Parallel()

	s := validTestSettings()
	s.Dedup.RadiusMeters = 0

	require.NoError(t, validateSettings(s))
	assert.InDelta(t, DefaultDedupRadiusMeters, s.Dedup.RadiusMeters, 0.001)

	s = validTestSettings()
	s.Dedup.RadiusMeters = 12.5
	require.NoError(t, validateSettings(s))
	assert.InDelta(t, 12.5, s.Dedup.RadiusMeters, 0.001)
}

func TestValidateSettingsExpandsMySQLPassword(t *testing.T) {
	t.Setenv("ROADWATCH_TEST_DB_PASS", "db-pass")

	s := validTestSettings()
	s.Output.MySQL.Enabled = true
	s.Output.MySQL.Password = "${ROADWATCH_TEST_DB_PASS}"

	require.NoError(t, validateSettings(s))
	assert.Equal(t, "db-pass", s.Output.MySQL.Password)
}

func TestValidateSettingsMissingEnvVar(t *testing.T) {
	t.Parallel()

	s := validTestSettings()
	s.Security.JWTSecret = "${ROADWATCH_TEST_UNSET_VAR_12345}"

	err := validateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROADWATCH_TEST_UNSET_VAR_12345")
}
