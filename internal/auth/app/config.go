package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/petauth/internal/auth/directory"
	"github.com/aussiebroadwan/petauth/pkg/cryptox"
	"github.com/aussiebroadwan/petauth/pkg/httpx"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store drivers accepted by AUTH_STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

const (
	minAccessTTL = time.Minute
	maxAccessTTL = 24 * time.Hour
)

type Config struct {
	Issuer         string        `mapstructure:"AUTH_ISSUER"`
	Audience       []string      `mapstructure:"AUTH_AUDIENCE"`
	Algorithm      string        `mapstructure:"AUTH_ALGORITHM"`        // RS256 or ES256, used when no key file is given
	SigningKeyFile string        `mapstructure:"AUTH_SIGNING_KEY_FILE"` // Optional: PEM private key, sealed when a master key is set
	MasterKeyPath  string        `mapstructure:"AUTH_MASTER_KEY_PATH"`  // Optional: master key that sealed the signing key file
	AccessTTL      time.Duration `mapstructure:"AUTH_ACCESS_TTL"`
	RefreshTTL     time.Duration `mapstructure:"AUTH_REFRESH_TTL"`
	Leeway         time.Duration `mapstructure:"AUTH_CLOCK_LEEWAY"`

	StoreDriver  string `mapstructure:"AUTH_STORE_DRIVER"`
	DatabaseFile string `mapstructure:"AUTH_DATABASE_FILE"`
	DatabaseURL  string `mapstructure:"AUTH_DATABASE_URL"`
	RedisAddr    string `mapstructure:"AUTH_REDIS_ADDR"`
	RedisPrefix  string `mapstructure:"AUTH_REDIS_PREFIX"`

	RevocationFailurePolicy string `mapstructure:"AUTH_REVOCATION_FAILURE_POLICY"` // closed or open
	RevokeRefreshOnLogout   bool   `mapstructure:"AUTH_REVOKE_REFRESH_ON_LOGOUT"`
	RefreshCookieSecure     bool   `mapstructure:"AUTH_REFRESH_COOKIE_SECURE"`

	RateLimitRequests int           `mapstructure:"AUTH_RATE_LIMIT_REQUESTS"` // 0 disables rate limiting
	RateLimitWindow   time.Duration `mapstructure:"AUTH_RATE_LIMIT_WINDOW"`

	Env                  string        `mapstructure:"ENV"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	LogFormat            string        `mapstructure:"LOG_FORMAT"`
	Port                 int           `mapstructure:"PORT"`
	ShutdownGracePeriod  time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"`
	HousekeepingInterval time.Duration `mapstructure:"HOUSEKEEPING_INTERVAL"`

	// Principals is only read from the config file.
	Principals []directory.Entry `mapstructure:"principals"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("AUTH_ISSUER", "petauth")
	v.SetDefault("AUTH_AUDIENCE", []string{})
	v.SetDefault("AUTH_ALGORITHM", cryptox.AlgRS256)
	v.SetDefault("AUTH_SIGNING_KEY_FILE", "")
	v.SetDefault("AUTH_MASTER_KEY_PATH", "")
	v.SetDefault("AUTH_ACCESS_TTL", 15*time.Minute)
	v.SetDefault("AUTH_REFRESH_TTL", 7*24*time.Hour)
	v.SetDefault("AUTH_CLOCK_LEEWAY", 30*time.Second)

	v.SetDefault("AUTH_STORE_DRIVER", DriverSQLite)
	v.SetDefault("AUTH_DATABASE_FILE", "auth.db")
	v.SetDefault("AUTH_DATABASE_URL", "")
	v.SetDefault("AUTH_REDIS_ADDR", "localhost:6379")
	v.SetDefault("AUTH_REDIS_PREFIX", "")

	v.SetDefault("AUTH_REVOCATION_FAILURE_POLICY", httpx.FailClosed.String())
	v.SetDefault("AUTH_REVOKE_REFRESH_ON_LOGOUT", false)
	v.SetDefault("AUTH_REFRESH_COOKIE_SECURE", true)

	v.SetDefault("AUTH_RATE_LIMIT_REQUESTS", httpx.StrictLimit.RequestsPerWindow)
	v.SetDefault("AUTH_RATE_LIMIT_WINDOW", httpx.StrictLimit.Window)

	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("PORT", 8080)
	v.SetDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second)
	v.SetDefault("HOUSEKEEPING_INTERVAL", time.Hour)
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"port":         "PORT",
	"log-level":    "LOG_LEVEL",
	"log-format":   "LOG_FORMAT",
	"store-driver": "AUTH_STORE_DRIVER",
	"database":     "AUTH_DATABASE_FILE",
	"key-file":     "AUTH_SIGNING_KEY_FILE",
	"master-key":   "AUTH_MASTER_KEY_PATH",
}

// LoadConfig reads the optional config file at path, then the environment,
// then any of flagKeys set on flags. Later sources win. The result is not
// validated.
func LoadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// AddFlags registers the flags LoadConfig understands.
func AddFlags(flags *pflag.FlagSet) {
	flags.Int("port", 0, "HTTP port (PORT)")
	flags.String("log-level", "", "log level: debug, info, warn, error (LOG_LEVEL)")
	flags.String("log-format", "", "log format: json or text (LOG_FORMAT)")
	flags.String("store-driver", "", "sqlite, postgres, redis or memory (AUTH_STORE_DRIVER)")
	flags.String("database", "", "SQLite database file (AUTH_DATABASE_FILE)")
	flags.String("key-file", "", "PEM signing key (AUTH_SIGNING_KEY_FILE)")
	flags.String("master-key", "", "master key that seals the signing key (AUTH_MASTER_KEY_PATH)")
}

// FailurePolicy parses RevocationFailurePolicy.
func (c Config) FailurePolicy() (httpx.FailurePolicy, error) {
	return httpx.ParseFailurePolicy(c.RevocationFailurePolicy)
}

// RateLimit returns the limiter settings for the credential endpoints.
func (c Config) RateLimit() httpx.RateLimitConfig {
	return httpx.RateLimitConfig{
		RequestsPerWindow: c.RateLimitRequests,
		Window:            c.RateLimitWindow,
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Issuer) == "" {
		errs = append(errs, errors.New("AUTH_ISSUER must not be empty"))
	}

	switch c.Algorithm {
	case cryptox.AlgRS256, cryptox.AlgES256:
	default:
		errs = append(errs, fmt.Errorf("AUTH_ALGORITHM %q: must be RS256 or ES256", c.Algorithm))
	}

	if c.AccessTTL < minAccessTTL || c.AccessTTL > maxAccessTTL {
		errs = append(errs, fmt.Errorf("AUTH_ACCESS_TTL %s: must be between %s and %s", c.AccessTTL, minAccessTTL, maxAccessTTL))
	}
	if c.RefreshTTL <= c.AccessTTL {
		errs = append(errs, fmt.Errorf("AUTH_REFRESH_TTL %s: must be longer than the access token TTL", c.RefreshTTL))
	}
	if c.Leeway < 0 {
		errs = append(errs, errors.New("AUTH_CLOCK_LEEWAY must not be negative"))
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_FILE is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_URL is required for the postgres driver"))
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("AUTH_REDIS_ADDR is required for the redis driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("AUTH_STORE_DRIVER %q: unknown driver", c.StoreDriver))
	}

	if _, err := c.FailurePolicy(); err != nil {
		errs = append(errs, fmt.Errorf("AUTH_REVOCATION_FAILURE_POLICY: %w", err))
	}

	if c.RateLimitRequests < 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT_REQUESTS must not be negative"))
	}
	if c.RateLimitRequests > 0 && c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT_WINDOW must be positive when rate limiting is on"))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d: out of range", c.Port))
	}
	if c.ShutdownGracePeriod <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_GRACE_PERIOD must be positive"))
	}

	if _, err := directory.New(c.Principals...); err != nil {
		errs = append(errs, fmt.Errorf("principals: %w", err))
	}

	return errors.Join(errs...)
}
