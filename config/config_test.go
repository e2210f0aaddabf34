package config

import (
	"os"
	"path/filepath"
	"testing"

	guardian "github.com/goliatone/go-guardian"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secrets = []string{
	"APP_SECURITY__AUTH_SALT=salt",
	"APP_SECURITY__JWT_KEY=0123456789abcdef0123",
}

func TestLoad_DefaultsWithSecrets(t *testing.T) {
	cfg, err := load("", secrets)
	require.NoError(t, err)

	assert.Equal(t, "salt", cfg.Security.AuthSalt)
	assert.Equal(t, 24, cfg.GetTokenExpiration())
	assert.Equal(t, guardian.DefaultCookieName, cfg.GetCookieName())
	assert.Equal(t, "cookie:guardian-id,header:Authorization", cfg.GetTokenLookup())
	assert.Equal(t, guardian.DriverSQLite, cfg.Database.Driver)
	assert.True(t, cfg.Features.Auth.EnableLogin)
}

func TestLoad_MissingSecretsFail(t *testing.T) {
	_, err := load("", nil)
	require.Error(t, err)
	assert.True(t, guardian.IsKind(err, guardian.KindValidation))

	fields := guardian.ValidationFields(err)
	assert.Contains(t, fields, "security.AuthSalt")
	assert.Contains(t, fields, "security.JWTKey")
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yml")
	yml := `
version: "1.2.3"
server:
  address: ":9000"
security:
  auth_salt: from-file
  jwt_key: file-key-0123456789
  jwt_expiration: 2
  session_name: sid
  admin_identities: ["root@example.com"]
features:
  auth:
    enable_signup: false
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	env := []string{
		"APP_SECURITY__JWT_EXPIRATION=6",
		"APP_SECURITY__SESSION_SECURE=true",
		"APP_SECURITY__ADMIN_IDENTITIES=[ops, root@example.com]",
		"APP_DATABASE__DRIVER=postgres",
		"UNRELATED=1",
	}
	cfg, err := load(path, env)
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "from-file", cfg.Security.AuthSalt)
	assert.Equal(t, 6, cfg.GetTokenExpiration())
	assert.True(t, cfg.GetCookieSecure())
	assert.Equal(t, "sid", cfg.GetCookieName())
	assert.Equal(t, []string{"ops", "root@example.com"}, cfg.Security.AdminIdentities)
	assert.Equal(t, guardian.DriverPostgres, cfg.Database.Driver)
	assert.False(t, cfg.Features.Auth.EnableSignup)
	assert.True(t, cfg.Features.Auth.EnableLogin)
}

func TestLoad_PathFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yml")
	require.NoError(t, os.WriteFile(path, []byte("security:\n  jwt_issuer: custom\n"), 0o600))

	cfg, err := load("", append([]string{PathEnv + "=" + path}, secrets...))
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.GetTokenIssuer())
}

func TestLoad_NumericSecretStaysString(t *testing.T) {
	cfg, err := load("", []string{
		"APP_SECURITY__AUTH_SALT=12345",
		"APP_SECURITY__JWT_KEY=12345678901234567890",
	})
	require.NoError(t, err)
	assert.Equal(t, "12345", cfg.Security.AuthSalt)
	assert.Equal(t, "12345678901234567890", cfg.GetSigningKey())
}

func TestLoad_UnknownDriverFails(t *testing.T) {
	_, err := load("", append([]string{"APP_DATABASE__DRIVER=oracle"}, secrets...))
	require.Error(t, err)
	assert.Contains(t, guardian.ValidationFields(err), "database.Driver")
}

func TestConfig_IsAdmin(t *testing.T) {
	cfg := Defaults()
	cfg.Security.AdminIdentities = []string{"email:root@example.com", "acct-7", "username: ops "}

	tests := []struct {
		name   string
		claims *guardian.Claims
		want   bool
	}{
		{name: "email entry", claims: &guardian.Claims{Email: "root@example.com"}, want: true},
		{name: "email entry ignores case", claims: &guardian.Claims{Email: "Root@Example.com"}, want: true},
		{name: "bare entry is an account id", claims: &guardian.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "acct-7"}}, want: true},
		{name: "username entry", claims: &guardian.Claims{Username: "ops"}, want: true},
		{name: "username spoofing an admin email", claims: &guardian.Claims{Username: "root@example.com"}, want: false},
		{name: "email spoofing an admin id", claims: &guardian.Claims{Email: "acct-7"}, want: false},
		{name: "subject spoofing an admin username", claims: &guardian.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"}}, want: false},
		{name: "other user", claims: &guardian.Claims{Email: "user@example.com"}, want: false},
		{name: "no claims", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.IsAdmin(tt.claims))
		})
	}
}

func TestValidate_AdminIdentities(t *testing.T) {
	cfg, err := load("", secrets)
	require.NoError(t, err)

	cfg.Security.AdminIdentities = []string{"role:admin"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, guardian.ValidationFields(err), "admin_identities")

	cfg.Security.AdminIdentities = []string{"email:"}
	assert.Error(t, cfg.Validate())

	cfg.Security.AdminIdentities = []string{"id:acct-1", "mobile:+12015550123"}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_EmailConfirmationNeedsCodeDelivery(t *testing.T) {
	_, err := load("", append([]string{"APP_SECURITY__REQUIRE_EMAIL_CONFIRMATION=true"}, secrets...))
	require.Error(t, err)
	assert.Contains(t, guardian.ValidationFields(err), "redis_url")

	cfg, err := load("", append([]string{
		"APP_SECURITY__REQUIRE_EMAIL_CONFIRMATION=true",
		"APP_REDIS_URL=redis://localhost:6379/0",
	}, secrets...))
	require.NoError(t, err)
	assert.True(t, cfg.Security.RequireEmailConfirmation)
}
