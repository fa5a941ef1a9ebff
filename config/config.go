package config

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	auth "github.com/goliatone/go-authcore"
)

// Config is the authd runtime configuration. Field tags map to the dotted
// keys used in YAML files, AUTHCORE_* variables and flags.
type Config struct {
	HTTP     HTTP     `koanf:"http" json:"http"`
	Token    Token    `koanf:"token" json:"token"`
	Reset    Reset    `koanf:"reset" json:"reset"`
	Password Password `koanf:"password" json:"password"`
	Database Database `koanf:"database" json:"database"`
	Store    Store    `koanf:"store" json:"store"`
	Notifier Notifier `koanf:"notifier" json:"notifier"`
	Log      Log      `koanf:"log" json:"log"`
}

type HTTP struct {
	Addr            string        `koanf:"addr" json:"addr"`
	Prefix          string        `koanf:"prefix" json:"prefix"`
	RateLimit       int           `koanf:"rate_limit" json:"rate_limit"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" json:"rate_limit_window"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
}

type Token struct {
	SigningKey          string        `koanf:"signing_key" json:"signing_key"`
	PreviousSigningKeys []string      `koanf:"previous_signing_keys" json:"previous_signing_keys"`
	SigningMethod       string        `koanf:"signing_method" json:"signing_method"`
	TTL                 time.Duration `koanf:"ttl" json:"ttl"`
	Issuer              string        `koanf:"issuer" json:"issuer"`
	Audience            []string      `koanf:"audience" json:"audience"`
	AuthScheme          string        `koanf:"auth_scheme" json:"auth_scheme"`
	Lookup              string        `koanf:"lookup" json:"lookup"`
	ContextKey          string        `koanf:"context_key" json:"context_key"`
}

type Reset struct {
	TTL           time.Duration `koanf:"ttl" json:"ttl"`
	PurgeInterval time.Duration `koanf:"purge_interval" json:"purge_interval"`
	LinkBaseURL   string        `koanf:"link_base_url" json:"link_base_url"`
}

type Password struct {
	MinLength  int `koanf:"min_length" json:"min_length"`
	MaxLength  int `koanf:"max_length" json:"max_length"`
	BcryptCost int `koanf:"bcrypt_cost" json:"bcrypt_cost"`
}

type Database struct {
	Driver      string `koanf:"driver" json:"driver"`
	DSN         string `koanf:"dsn" json:"dsn"`
	AutoMigrate bool   `koanf:"auto_migrate" json:"auto_migrate"`
}

type Store struct {
	Timeout time.Duration `koanf:"timeout" json:"timeout"`
}

type Notifier struct {
	Timeout    time.Duration `koanf:"timeout" json:"timeout"`
	MaxRetries uint64        `koanf:"max_retries" json:"max_retries"`
	Backoff    time.Duration `koanf:"backoff" json:"backoff"`
}

type Log struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var _ auth.Config = Config{}

var prefixPattern = regexp.MustCompile(`^/\S*$`)

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.HTTP),
		validation.Field(&c.Token),
		validation.Field(&c.Reset),
		validation.Field(&c.Password),
		validation.Field(&c.Database),
		validation.Field(&c.Store),
		validation.Field(&c.Notifier),
		validation.Field(&c.Log),
	)
}

func (h HTTP) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Addr, validation.Required),
		validation.Field(&h.Prefix, validation.Required, validation.Match(prefixPattern)),
		validation.Field(&h.RateLimit, validation.Min(0)),
		validation.Field(&h.RateLimitWindow, validation.When(h.RateLimit > 0, validation.Required)),
	)
}

func (t Token) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.SigningKey, validation.Required, validation.Length(auth.MinSigningKeyLength, 0)),
		validation.Field(&t.PreviousSigningKeys, validation.Each(validation.Length(auth.MinSigningKeyLength, 0))),
		validation.Field(&t.SigningMethod, validation.Required, validation.In("HS256")),
		validation.Field(&t.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&t.AuthScheme, validation.Required),
		validation.Field(&t.Lookup, validation.Required),
		validation.Field(&t.ContextKey, validation.Required),
	)
}

func (r Reset) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&r.PurgeInterval, validation.Min(time.Duration(0))),
		validation.Field(&r.LinkBaseURL, validation.Required, is.URL),
	)
}

func (p Password) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MinLength, validation.Required, validation.Min(1)),
		validation.Field(&p.MaxLength, validation.Required, validation.Min(p.MinLength), validation.Max(auth.DefaultPasswordMaxLength)),
		validation.Field(&p.BcryptCost, validation.Required, validation.Min(4), validation.Max(31)),
	)
}

func (d Database) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(DriverMemory, DriverSQLite, DriverPostgres)),
		validation.Field(&d.DSN, validation.When(d.Driver != DriverMemory, validation.Required)),
	)
}

func (s Store) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Timeout, validation.Required),
	)
}

func (n Notifier) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Timeout, validation.Required),
		validation.Field(&n.Backoff, validation.When(n.MaxRetries > 0, validation.Required)),
	)
}

func (l Log) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("json", "text")),
	)
}

func (c Config) GetSigningKey() string             { return c.Token.SigningKey }
func (c Config) GetPreviousSigningKeys() []string  { return c.Token.PreviousSigningKeys }
func (c Config) GetSigningMethod() string          { return c.Token.SigningMethod }
func (c Config) GetContextKey() string             { return c.Token.ContextKey }
func (c Config) GetTokenTTL() time.Duration        { return c.Token.TTL }
func (c Config) GetTokenLookup() string            { return c.Token.Lookup }
func (c Config) GetAuthScheme() string             { return c.Token.AuthScheme }
func (c Config) GetIssuer() string                 { return c.Token.Issuer }
func (c Config) GetAudience() []string             { return c.Token.Audience }
func (c Config) GetResetTTL() time.Duration        { return c.Reset.TTL }
func (c Config) GetResetLinkBaseURL() string       { return c.Reset.LinkBaseURL }
func (c Config) GetPasswordMinLength() int         { return c.Password.MinLength }
func (c Config) GetPasswordMaxLength() int         { return c.Password.MaxLength }
func (c Config) GetStoreTimeout() time.Duration    { return c.Store.Timeout }
func (c Config) GetNotifierTimeout() time.Duration { return c.Notifier.Timeout }
