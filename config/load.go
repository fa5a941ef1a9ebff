package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	auth "github.com/goliatone/go-authcore"
)

// EnvPrefix namespaces environment overrides, AUTHCORE_TOKEN_TTL sets token.ttl
const EnvPrefix = "AUTHCORE_"

const delim = "."

// list valued keys, comma separated in the environment
var listKeys = map[string]bool{
	"token.previous_signing_keys": true,
	"token.audience":              true,
}

// Defaults returns the configuration used when nothing overrides a key.
// The signing key is left empty and must be provided.
func Defaults() Config {
	return Config{
		HTTP: HTTP{
			Addr:            ":8080",
			Prefix:          "/api/auth",
			RateLimit:       10,
			RateLimitWindow: time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Token: Token{
			SigningMethod: "HS256",
			TTL:           24 * time.Hour,
			Issuer:        "authcore",
			AuthScheme:    "Bearer",
			Lookup:        "header:Authorization",
			ContextKey:    "user",
		},
		Reset: Reset{
			TTL:           time.Hour,
			PurgeInterval: 10 * time.Minute,
			LinkBaseURL:   "http://localhost:8080/reset-password",
		},
		Password: Password{
			MinLength:  6,
			MaxLength:  72,
			BcryptCost: auth.DefaultBcryptCost,
		},
		Database: Database{
			Driver:      DriverMemory,
			AutoMigrate: true,
		},
		Store: Store{
			Timeout: 5 * time.Second,
		},
		Notifier: Notifier{
			Timeout:    10 * time.Second,
			MaxRetries: 3,
			Backoff:    200 * time.Millisecond,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, the YAML file at path, AUTHCORE_* variables and
// flags, in that order, and validates the result. An empty path skips the
// file.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(delim)

	for key, val := range flattenDefaults(Defaults()) {
		if err := k.Set(key, val); err != nil {
			return Config{}, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, delim, envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, delim, k), nil); err != nil {
			return Config{}, fmt.Errorf("config flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("config decode: %w", err)
	}

	for i, aud := range cfg.Token.Audience {
		cfg.Token.Audience[i] = strings.TrimSpace(aud)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// MustLoad panics when Load fails
func MustLoad(path string, flags *pflag.FlagSet) Config {
	cfg, err := Load(path, flags)
	if err != nil {
		panic(err)
	}
	return cfg
}

// envKey maps AUTHCORE_TOKEN_SIGNING_KEY to token.signing_key
func envKey(name, value string) (string, any) {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, rest, ok := strings.Cut(name, "_")
	if !ok {
		return "", nil
	}

	key := section + delim + rest
	if listKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RegisterFlags binds the most common keys to flags. Only flags set on the
// command line override file and environment values.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String("http.addr", d.HTTP.Addr, "listen address")
	flags.String("http.prefix", d.HTTP.Prefix, "route prefix for the auth endpoints")
	flags.Int("http.rate_limit", d.HTTP.RateLimit, "requests per window on login and reset routes, 0 disables")
	flags.Duration("token.ttl", d.Token.TTL, "identity token lifetime")
	flags.Duration("reset.ttl", d.Reset.TTL, "password reset token lifetime")
	flags.String("reset.link_base_url", d.Reset.LinkBaseURL, "base URL of reset links")
	flags.String("database.driver", d.Database.Driver, "memory, sqlite or postgres")
	flags.String("database.dsn", d.Database.DSN, "database connection string")
	flags.String("log.level", d.Log.Level, "debug, info, warn or error")
	flags.String("log.format", d.Log.Format, "json or text")
}

func flattenDefaults(c Config) map[string]any {
	return map[string]any{
		"http.addr":                   c.HTTP.Addr,
		"http.prefix":                 c.HTTP.Prefix,
		"http.rate_limit":             c.HTTP.RateLimit,
		"http.rate_limit_window":      c.HTTP.RateLimitWindow,
		"http.shutdown_timeout":       c.HTTP.ShutdownTimeout,
		"token.signing_key":           c.Token.SigningKey,
		"token.previous_signing_keys": c.Token.PreviousSigningKeys,
		"token.signing_method":        c.Token.SigningMethod,
		"token.ttl":                   c.Token.TTL,
		"token.issuer":                c.Token.Issuer,
		"token.audience":              c.Token.Audience,
		"token.auth_scheme":           c.Token.AuthScheme,
		"token.lookup":                c.Token.Lookup,
		"token.context_key":           c.Token.ContextKey,
		"reset.ttl":                   c.Reset.TTL,
		"reset.purge_interval":        c.Reset.PurgeInterval,
		"reset.link_base_url":         c.Reset.LinkBaseURL,
		"password.min_length":         c.Password.MinLength,
		"password.max_length":         c.Password.MaxLength,
		"password.bcrypt_cost":        c.Password.BcryptCost,
		"database.driver":             c.Database.Driver,
		"database.dsn":                c.Database.DSN,
		"database.auto_migrate":       c.Database.AutoMigrate,
		"store.timeout":               c.Store.Timeout,
		"notifier.timeout":            c.Notifier.Timeout,
		"notifier.max_retries":        c.Notifier.MaxRetries,
		"notifier.backoff":            c.Notifier.Backoff,
		"log.level":                   c.Log.Level,
		"log.format":                  c.Log.Format,
	}
}
