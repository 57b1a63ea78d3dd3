package swapcard

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	Name    = "SwapCard"
	Version = "1.4.0"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log         LogConfig         `toml:"log"`
	DB          DBConfig          `toml:"db"`
	Web         WebConfig         `toml:"web"`
	Spaces      SpacesConfig      `toml:"spaces"`
	Mailer      MailerConfig      `toml:"mailer"`
	Market      MarketConfig      `toml:"market"`
	Idempotency IdempotencyConfig `toml:"idempotency"`
	Legacy      LegacyConfig      `toml:"legacy"`
}

// Duration decodes TOML strings such as "168h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	User         string   `toml:"user"`
	Password     string   `toml:"password"`
	Database     string   `toml:"database"`
	PoolSize     int      `toml:"pool_size"`
	MaxIdleConns int      `toml:"max_idle_conns"`
	MaxLifetime  Duration `toml:"max_lifetime"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type WebConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins string   `toml:"allowed_origins"`
	SessionSecret  string   `toml:"session_secret"`
	SessionTTL     Duration `toml:"session_ttl"`
	SecureCookies  bool     `toml:"secure_cookies"`
}

func (c WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SpacesConfig struct {
	Key       string `toml:"key"`
	Secret    string `toml:"secret"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Endpoint  string `toml:"endpoint"`
	PublicURL string `toml:"public_url"`
	CardRoot  string `toml:"card_root"`
}

type MailerConfig struct {
	BaseURL          string   `toml:"base_url"`
	VerificationPath string   `toml:"verification_path"`
	NotificationPath string   `toml:"notification_path"`
	Timeout          Duration `toml:"timeout"`
	Disabled         bool     `toml:"disabled"`
}

type MarketConfig struct {
	ListingTTL   Duration `toml:"listing_ttl"`
	RatingMin    int      `toml:"rating_min"`
	RatingMax    int      `toml:"rating_max"`
	PhonePattern string   `toml:"phone_pattern"`
	RecentWindow Duration `toml:"recent_window"`
}

// Phone compiles PhonePattern. Validate has already checked it.
func (c MarketConfig) Phone() *regexp.Regexp {
	return regexp.MustCompile(c.PhonePattern)
}

type IdempotencyConfig struct {
	Path  string   `toml:"path"`
	TTL   Duration `toml:"ttl"`
	Lease Duration `toml:"lease"`
}

type LegacyConfig struct {
	MongoURI string `toml:"mongo_uri"`
	Database string `toml:"database"`
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.Web.SessionSecret = v
	}
	if v := os.Getenv("SPACES_KEY"); v != "" {
		c.Spaces.Key = v
	}
	if v := os.Getenv("SPACES_SECRET"); v != "" {
		c.Spaces.Secret = v
	}
}

// ApplyDefaults fills every zero value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Log.Format == "" {
		c.Log.Format = "pretty"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.DB.PoolSize == 0 {
		c.DB.PoolSize = 20
	}
	if c.DB.MaxIdleConns == 0 {
		c.DB.MaxIdleConns = 5
	}
	if c.DB.MaxLifetime.Duration == 0 {
		c.DB.MaxLifetime.Duration = time.Hour
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.AllowedOrigins == "" {
		c.Web.AllowedOrigins = "*"
	}
	if c.Web.SessionTTL.Duration == 0 {
		c.Web.SessionTTL.Duration = 24 * time.Hour
	}
	if c.Spaces.CardRoot == "" {
		c.Spaces.CardRoot = "cards"
	}
	if c.Mailer.BaseURL == "" {
		c.Mailer.BaseURL = "https://mailer-sender.vercel.app/api/v1/"
	}
	if c.Mailer.VerificationPath == "" {
		c.Mailer.VerificationPath = "verification"
	}
	if c.Mailer.NotificationPath == "" {
		c.Mailer.NotificationPath = "notification"
	}
	if c.Mailer.Timeout.Duration == 0 {
		c.Mailer.Timeout.Duration = 10 * time.Second
	}
	if c.Market.ListingTTL.Duration == 0 {
		c.Market.ListingTTL.Duration = 7 * 24 * time.Hour
	}
	if c.Market.RatingMin == 0 {
		c.Market.RatingMin = 1
	}
	if c.Market.RatingMax == 0 {
		c.Market.RatingMax = 5
	}
	if c.Market.PhonePattern == "" {
		c.Market.PhonePattern = `^\+971[0-9]{9}$`
	}
	if c.Market.RecentWindow.Duration == 0 {
		c.Market.RecentWindow.Duration = 7 * 24 * time.Hour
	}
	if c.Idempotency.Path == "" {
		c.Idempotency.Path = "idempotency.db"
	}
	if c.Idempotency.TTL.Duration == 0 {
		c.Idempotency.TTL.Duration = 24 * time.Hour
	}
	if c.Idempotency.Lease.Duration == 0 {
		c.Idempotency.Lease.Duration = 30 * time.Second
	}
	if c.Legacy.Database == "" {
		c.Legacy.Database = "swapcard"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("db.host is required"))
	}
	if c.DB.Database == "" {
		errs = append(errs, errors.New("db.database is required"))
	}
	if c.Web.SessionSecret == "" {
		errs = append(errs, errors.New("web.session_secret is required"))
	}
	if c.Market.RatingMin < 1 {
		errs = append(errs, fmt.Errorf("market.rating_min must be at least 1, got %d", c.Market.RatingMin))
	}
	if c.Market.RatingMax < c.Market.RatingMin {
		errs = append(errs, fmt.Errorf("market.rating_max (%d) is below rating_min (%d)", c.Market.RatingMax, c.Market.RatingMin))
	}
	if _, err := regexp.Compile(c.Market.PhonePattern); err != nil {
		errs = append(errs, fmt.Errorf("market.phone_pattern: %w", err))
	}
	return errors.Join(errs...)
}
