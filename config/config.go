package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	guardian "github.com/goliatone/go-guardian"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix marks environment overrides, e.g. APP_SECURITY__JWT_KEY
	EnvPrefix = "APP_"
	// EnvSeparator separates nested keys in an override name
	EnvSeparator = "__"
	// PathEnv names the optional YAML file
	PathEnv = "GUARDIAN_CONFIG_PATH"
)

// Config is the process configuration. It is loaded once and read only
// afterwards.
type Config struct {
	Version  string   `yaml:"version"`
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	RedisURL string   `yaml:"redis_url"`
	Security Security `yaml:"security"`
	Features Features `yaml:"features"`
}

type Server struct {
	Address string `yaml:"address"`
}

type Database struct {
	// Driver is one of sqlite, postgres or mongo
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	// DeterministicIDs derives account ids from the primary identity
	DeterministicIDs bool `yaml:"deterministic_ids"`
}

type Security struct {
	AuthSalt  string `yaml:"auth_salt"`
	JWTKey    string `yaml:"jwt_key"`
	JWTIssuer string `yaml:"jwt_issuer"`
	// JWTExpiration is the token TTL in hours
	JWTExpiration     int      `yaml:"jwt_expiration"`
	TokenLookup       string   `yaml:"token_lookup"`
	AuthScheme        string   `yaml:"auth_scheme"`
	SessionName       string   `yaml:"session_name"`
	SessionPath       string   `yaml:"session_path"`
	SessionDomain     string   `yaml:"session_domain"`
	SessionSecure     bool     `yaml:"session_secure"`
	SessionMaxAgeSecs int      `yaml:"session_max_age_secs"`
	SameSite          string   `yaml:"same_site"`
	ResponseHeader    string   `yaml:"response_header"`
	SoftFail          bool     `yaml:"soft_fail"`
	CSRFEnabled       bool     `yaml:"csrf_enabled"`
	AdminIdentities   []string `yaml:"admin_identities"`
	PhoneRegion       string   `yaml:"phone_region"`
	// OneTimeCodeDuration is the code TTL in minutes
	OneTimeCodeDuration      int  `yaml:"onetime_code_duration"`
	OneTimeCodeLength        int  `yaml:"onetime_code_length"`
	RequireEmailConfirmation bool `yaml:"require_email_confirmation"`
	LoginRatePerMinute       int  `yaml:"login_rate_per_minute"`
}

type Features struct {
	Auth AuthFeatures `yaml:"auth"`
}

type AuthFeatures struct {
	EnableSignup bool `yaml:"enable_signup"`
	EnableLogin  bool `yaml:"enable_login"`
}

var _ guardian.Config = (*Config)(nil)

// Defaults returns a configuration that only lacks secrets
func Defaults() *Config {
	return &Config{
		Version: "dev",
		Server:  Server{Address: ":8978"},
		Database: Database{
			Driver:        guardian.DriverSQLite,
			DSN:           "file:guardian.db?cache=shared",
			MongoDatabase: "guardian",
		},
		Security: Security{
			JWTIssuer:           "guardian",
			JWTExpiration:       24,
			AuthScheme:          guardian.DefaultAuthScheme,
			SessionName:         guardian.DefaultCookieName,
			SessionPath:         "/",
			SessionMaxAgeSecs:   24 * 60 * 60,
			SameSite:            "lax",
			SoftFail:            true,
			PhoneRegion:         guardian.DefaultPhoneRegion,
			OneTimeCodeDuration: 15,
			OneTimeCodeLength:   6,
			LoginRatePerMinute:  10,
		},
		Features: Features{Auth: AuthFeatures{EnableSignup: true, EnableLogin: true}},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path (or $GUARDIAN_CONFIG_PATH) and APP_ environment overrides, then
// validates it.
func Load(path string) (*Config, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = lookupEnv(environ, PathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read config file")
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to parse config file")
		}
	}

	if err := applyEnv(cfg, environ); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the process cannot start without
func (c *Config) Validate() error {
	err := validation.Errors{
		"security": validation.ValidateStruct(&c.Security,
			validation.Field(&c.Security.AuthSalt, validation.Required),
			validation.Field(&c.Security.JWTKey, validation.Required, validation.Length(16, 0)),
			validation.Field(&c.Security.JWTExpiration, validation.Required, validation.Min(1)),
			validation.Field(&c.Security.SameSite, validation.In("lax", "strict", "none", "Lax", "Strict", "None")),
		),
		"admin_identities": validateAdminIdentities(c.Security.AdminIdentities),
		"redis_url":        c.validateCodeDelivery(),
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.Required, validation.In(guardian.DriverSQLite, guardian.DriverPostgres, DriverMongo)),
		),
	}.Filter()
	if err == nil {
		return nil
	}

	fields := map[string]string{}
	var groups validation.Errors
	if errors.As(err, &groups) {
		for group, gerr := range groups {
			var inner validation.Errors
			if errors.As(gerr, &inner) {
				for field, ferr := range inner {
					fields[group+"."+field] = ferr.Error()
				}
				continue
			}
			fields[group] = gerr.Error()
		}
	}
	return guardian.NewValidationError("invalid configuration", fields)
}

// validateCodeDelivery rejects settings that would create accounts nobody can
// confirm
func (c *Config) validateCodeDelivery() error {
	if c.Security.RequireEmailConfirmation && strings.TrimSpace(c.RedisURL) == "" {
		return errors.New("is required when security.require_email_confirmation is enabled")
	}
	return nil
}

// DriverMongo selects the document store
const DriverMongo = "mongo"

func (c *Config) GetSigningKey() string  { return c.Security.JWTKey }
func (c *Config) GetTokenIssuer() string { return c.Security.JWTIssuer }
func (c *Config) GetTokenExpiration() int {
	return c.Security.JWTExpiration
}
func (c *Config) GetTokenLookup() string {
	if c.Security.TokenLookup != "" {
		return c.Security.TokenLookup
	}
	return guardian.DefaultTokenLookup(c.GetCookieName())
}
func (c *Config) GetAuthScheme() string { return c.Security.AuthScheme }
func (c *Config) GetCookieName() string {
	if c.Security.SessionName == "" {
		return guardian.DefaultCookieName
	}
	return c.Security.SessionName
}
func (c *Config) GetCookiePath() string     { return c.Security.SessionPath }
func (c *Config) GetCookieDomain() string   { return c.Security.SessionDomain }
func (c *Config) GetCookieSecure() bool     { return c.Security.SessionSecure }
func (c *Config) GetCookieSameSite() string { return c.Security.SameSite }
func (c *Config) GetCookieMaxAge() int      { return c.Security.SessionMaxAgeSecs }
func (c *Config) GetResponseHeader() string { return c.Security.ResponseHeader }

// IsAdmin reports whether claims belong to a configured administrator.
// Entries are "id:<account id>", "email:<address>", "username:<name>" or
// "mobile:<e164>"; an entry without a prefix is an account id.
func (c *Config) IsAdmin(claims *guardian.Claims) bool {
	if claims == nil {
		return false
	}
	for _, entry := range c.Security.AdminIdentities {
		attr, value := parseAdminIdentity(entry)
		if claims.HasIdentity(attr, value) {
			return true
		}
	}
	return false
}

func parseAdminIdentity(entry string) (string, string) {
	entry = strings.TrimSpace(entry)
	attr, value, ok := strings.Cut(entry, ":")
	if !ok {
		return guardian.IdentityAttrID, entry
	}
	return strings.ToLower(strings.TrimSpace(attr)), strings.TrimSpace(value)
}

func validateAdminIdentities(entries []string) error {
	for _, entry := range entries {
		attr, value := parseAdminIdentity(entry)
		switch attr {
		case guardian.IdentityAttrID, guardian.IdentityAttrEmail, guardian.IdentityAttrUsername, guardian.IdentityAttrMobile:
		default:
			return fmt.Errorf("unknown identity attribute in %q", entry)
		}
		if value == "" {
			return fmt.Errorf("empty identity in %q", entry)
		}
	}
	return nil
}

func lookupEnv(environ []string, key string) string {
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return ""
}
