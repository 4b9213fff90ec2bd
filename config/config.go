// Package config loads the bot configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
)

// Storage backends.
const (
	StorageJSON     = "json"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config is the full bot configuration.
type Config struct {
	// Telegram
	BotToken    string `env:"BOT_TOKEN,required,notEmpty"`
	AppID       int    `env:"APP_ID,required"`
	AppHash     string `env:"APP_HASH,required,notEmpty"`
	SessionFile string `env:"SESSION_FILE" envDefault:"modgate.session"`

	// Roles
	Owner  int64   `env:"OWNER_ID,required"`
	Admins []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Channels maps channel keys to public identifiers, "key=@name,...".
	Channels       map[string]string `env:"CHANNELS" envSeparator:"," envKeyValSeparator:"=" envDefault:"main=@YAKMODS"`
	PrimaryChannel string            `env:"PRIMARY_CHANNEL" envDefault:"main"`
	// Categories overrides the category table, "key:Label,...".
	Categories []string `env:"CATEGORIES" envSeparator:","`

	SuggestionCooldown time.Duration `env:"SUGGESTION_COOLDOWN" envDefault:"60s"`
	ViolationThreshold int           `env:"VIOLATION_THRESHOLD" envDefault:"10"`

	// BannerURL is a photo shown with the welcome message. Optional.
	BannerURL string `env:"BANNER_URL"`

	FanoutDelay       time.Duration `env:"FANOUT_DELAY" envDefault:"50ms"`
	FanoutConcurrency int           `env:"FANOUT_CONCURRENCY" envDefault:"1"`

	// Storage
	StorageBackend string `env:"STORAGE" envDefault:"json"`
	// StoragePath is the directory for json and the file for sqlite.
	StoragePath string `env:"STORAGE_PATH" envDefault:"data"`
	DatabaseURL string `env:"DATABASE_URL"`

	// MQTT event feed. Disabled when the broker is empty.
	MQTTBroker      string `env:"MQTT_BROKER"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	MQTTTLS         bool   `env:"MQTT_TLS"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"modgate"`

	// HTTPAddr enables the status server when set.
	HTTPAddr string `env:"HTTP_ADDR"`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
}

// Load reads an optional .env file, then parses MODGATE_* variables.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// A missing file is normal outside development.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse(nil)
}

// Parse reads the configuration from environ, or the process environment
// when environ is nil.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: "MODGATE_"}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks rules that span fields.
func (c *Config) Validate() error {
	if c.Owner <= 0 {
		return errors.New("owner id must be positive")
	}
	if c.ViolationThreshold <= 0 {
		return errors.New("violation threshold must be positive")
	}
	if c.FanoutConcurrency <= 0 {
		return errors.New("fanout concurrency must be positive")
	}
	if _, ok := c.Channels[c.PrimaryChannel]; !ok {
		return fmt.Errorf("primary channel %q is not in the channel table", c.PrimaryChannel)
	}
	switch c.StorageBackend {
	case StorageJSON, StorageSQLite:
		if c.StoragePath == "" {
			return fmt.Errorf("%s storage needs a path", c.StorageBackend)
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("postgres storage needs a database url")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if _, err := c.CategoryTable(); err != nil {
		return err
	}
	return nil
}

// OwnerID returns the owner as a user ID.
func (c *Config) OwnerID() core.UserID {
	return core.UserID(c.Owner)
}

// AdminIDs returns the seeded admins, excluding the owner.
func (c *Config) AdminIDs() []core.UserID {
	var out []core.UserID
	for _, id := range c.Admins {
		if id > 0 && id != c.Owner && !slices.Contains(out, core.UserID(id)) {
			out = append(out, core.UserID(id))
		}
	}
	return out
}

// CategoryTable returns the configured categories, or the defaults.
func (c *Config) CategoryTable() (post.Categories, error) {
	if len(c.Categories) == 0 {
		return post.DefaultCategories, nil
	}
	return post.ParseCategories(c.Categories)
}

// Banner returns the welcome banner media. Zero when unset.
func (c *Config) Banner() post.Media {
	if c.BannerURL == "" {
		return post.Media{}
	}
	return post.Media{Kind: post.MediaPhoto, Ref: c.BannerURL}
}
