package authcore

import (
	"encoding/json"
	"os"

	"github.com/caarlos0/env/v11"
)

/*

Example config:

{
	"Log": {
		"Filename": "/var/log/authcore/authcore.log"
	},
	"SessionTimeoutMinutes":    30,
	"InactivityTimeoutSeconds": 1800,
	"ReauthTimeoutSeconds":     3600,
	"MaxLoginAttempts":         3,
	"AccountLockoutMinutes":    15,
	"PasswordMinLength":        12,
	"PasswordExpirationDays":   90,
	"PasswordHistorySize":      5,
	"MaxConcurrentSessions":    2,
	"EnforceIPBinding":         true
}

Every value can also be supplied through the process environment; the
variable name is the AUTH_ prefix plus the upper-cased, underscore-separated
option name (e.g. AUTH_SESSION_TIMEOUT_MINUTES). Environment values override
the config file.

*/

type ConfigLog struct {
	Filename string `env:"AUTH_LOG_FILENAME"`
}

type Config struct {
	Log ConfigLog

	SessionTimeoutMinutes    int  `env:"AUTH_SESSION_TIMEOUT_MINUTES"`
	InactivityTimeoutSeconds int  `env:"AUTH_INACTIVITY_TIMEOUT_SECONDS"`
	ReauthTimeoutSeconds     int  `env:"AUTH_REAUTH_TIMEOUT_SECONDS"`
	MaxConcurrentSessions    int  `env:"AUTH_MAX_CONCURRENT_SESSIONS"`
	EnforceIPBinding         bool `env:"AUTH_ENFORCE_IP_BINDING"`
	EnforceUserAgentBinding  bool `env:"AUTH_ENFORCE_USER_AGENT_BINDING"`

	MaxLoginAttempts      int `env:"AUTH_MAX_LOGIN_ATTEMPTS"`
	AccountLockoutMinutes int `env:"AUTH_ACCOUNT_LOCKOUT_MINUTES"`

	PasswordMinLength         int  `env:"AUTH_PASSWORD_MIN_LENGTH"`
	RequirePasswordComplexity bool `env:"AUTH_REQUIRE_PASSWORD_COMPLEXITY"`
	PasswordExpirationDays    int  `env:"AUTH_PASSWORD_EXPIRATION_DAYS"`
	PasswordHistorySize       int  `env:"AUTH_PASSWORD_HISTORY_SIZE"`

	EnableMFA bool `env:"AUTH_ENABLE_MFA"`

	// TokenExpirationMinutes and EnableAuditLogging are pass-through values
	// for the layers that issue tokens and write audit trails.
	TokenExpirationMinutes int  `env:"AUTH_TOKEN_EXPIRATION_MINUTES"`
	EnableAuditLogging     bool `env:"AUTH_ENABLE_AUDIT_LOGGING"`
}

func (x *Config) Reset() {
	*x = Config{}
	x.SessionTimeoutMinutes = 30
	x.ReauthTimeoutSeconds = 3600
	x.MaxLoginAttempts = 3
	x.AccountLockoutMinutes = 15
	x.PasswordMinLength = 12
	x.RequirePasswordComplexity = true
	x.PasswordExpirationDays = 90
	x.PasswordHistorySize = 5
	x.TokenExpirationMinutes = 60
	x.EnableAuditLogging = true
}

func (x *Config) LoadFile(filename string) error {
	x.Reset()
	all, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(all, x); err != nil {
		return err
	}
	return x.LoadEnv()
}

// LoadEnv overrides config values from the process environment.
func (x *Config) LoadEnv() error {
	return env.Parse(x)
}

// DefaultConfig returns the defaults with environment overrides applied.
func DefaultConfig() (*Config, error) {
	cfg := &Config{}
	cfg.Reset()
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
