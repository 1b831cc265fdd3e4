package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

type App struct {
	// dev | staging | prod
	Env     string `yaml:"env" env:"APP_ENV"`
	Name    string `yaml:"name" env:"APP_NAME"`
	Version string `yaml:"version" env:"APP_VERSION"`
}

type Server struct {
	Addr            string        `yaml:"addr" env:"SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

type Log struct {
	Level      string        `yaml:"level" env:"LOG_LEVEL"`
	File       string        `yaml:"file" env:"LOG_FILE"`
	FileMaxAge time.Duration `yaml:"file_max_age" env:"LOG_FILE_MAX_AGE"`
}

type Keys struct {
	RotationEnabled   bool   `yaml:"rotation_enabled" env:"KEY_ROTATION_ENABLED"`
	StartupHealthGate bool   `yaml:"startup_health_gate" env:"KEY_STARTUP_HEALTH_GATE"`
	LifetimeDays      int    `yaml:"lifetime_days" env:"KEY_LIFETIME_DAYS"`
	ProductID         string `yaml:"product_id" env:"KEY_PRODUCT_ID"`
	// Overrides; 0 = derivado del entorno.
	RotationInterval time.Duration `yaml:"rotation_interval" env:"KEY_ROTATION_INTERVAL"`
	RotationOffset   time.Duration `yaml:"rotation_offset" env:"KEY_ROTATION_OFFSET"`
}

type Registry struct {
	URL          string        `yaml:"url" env:"KEY_REGISTRY_URL"`
	DevMode      bool          `yaml:"dev_mode" env:"KEY_REGISTRY_DEV_MODE"`
	Timeout      time.Duration `yaml:"timeout" env:"KEY_REGISTRY_TIMEOUT"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"KEY_REGISTRY_RETRY_BACKOFF"`
	// BearerToken estático; la adquisición OAuth real vive fuera del nodo.
	BearerToken string `yaml:"bearer_token" env:"KEY_REGISTRY_TOKEN"`
}

type Validation struct {
	ProductIDValidation bool   `yaml:"product_id_validation" env:"TOKEN_PRODUCT_ID_VALIDATION"`
	ExpectedProductID   string `yaml:"expected_product_id" env:"TOKEN_EXPECTED_PRODUCT_ID"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX"`
}

type Cache struct {
	// none | memory | redis
	Kind  string `yaml:"kind" env:"CACHE_KIND"`
	Redis Redis  `yaml:"redis"`
	// Retención local de kids que el registry respondió con 4xx.
	FailedLookupTTL  time.Duration `yaml:"failed_lookup_ttl" env:"JWK_FAILED_LOOKUP_TTL"`
	MaxFailedLookups int           `yaml:"max_failed_lookups" env:"JWK_MAX_FAILED_LOOKUPS"`
}

type Audit struct {
	// log | postgres | both | none
	Sink        string `yaml:"sink" env:"AUDIT_SINK"`
	PostgresDSN string `yaml:"postgres_dsn" env:"AUDIT_PG_DSN"`
	QueueSize   int    `yaml:"queue_size" env:"AUDIT_QUEUE_SIZE"`
}

type Config struct {
	App        App        `yaml:"app"`
	Server     Server     `yaml:"server"`
	Log        Log        `yaml:"log"`
	Keys       Keys       `yaml:"keys"`
	Registry   Registry   `yaml:"registry"`
	Validation Validation `yaml:"validation"`
	Cache      Cache      `yaml:"cache"`
	Audit      Audit      `yaml:"audit"`
}

// Load lee config.yaml (si path != "" y existe), pisa con variables de entorno
// y completa defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// sin archivo: solo env + defaults
		default:
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	c.App.Env = strings.ToLower(strings.TrimSpace(c.App.Env))
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "proctoken"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Keys.LifetimeDays == 0 {
		c.Keys.LifetimeDays = 7
	}
	if c.Registry.Timeout == 0 {
		c.Registry.Timeout = 10 * time.Second
	}
	if c.Registry.RetryBackoff == 0 {
		c.Registry.RetryBackoff = time.Second
	}
	if c.Validation.ExpectedProductID == "" {
		c.Validation.ExpectedProductID = c.Keys.ProductID
	}
	c.Cache.Kind = strings.ToLower(strings.TrimSpace(c.Cache.Kind))
	if c.Cache.Kind == "" {
		c.Cache.Kind = "none"
	}
	if c.Cache.FailedLookupTTL == 0 {
		c.Cache.FailedLookupTTL = 15 * time.Minute
	}
	if c.Cache.MaxFailedLookups == 0 {
		c.Cache.MaxFailedLookups = 10000
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "proctoken"
	}
	c.Audit.Sink = strings.ToLower(strings.TrimSpace(c.Audit.Sink))
	if c.Audit.Sink == "" {
		c.Audit.Sink = "log"
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = 1024
	}
}

// IsProductionLike: prod, production o staging.
func (c *Config) IsProductionLike() bool {
	switch c.App.Env {
	case "prod", "production", "staging":
		return true
	}
	return false
}

// RotationInterval: 4h en entornos productivos, 5m en el resto.
func (c *Config) RotationInterval() time.Duration {
	if c.Keys.RotationInterval > 0 {
		return c.Keys.RotationInterval
	}
	if c.IsProductionLike() {
		return 4 * time.Hour
	}
	return 5 * time.Minute
}

// RotationOffset: anticipación antes de la expiración. 48h productivo, 12h resto.
func (c *Config) RotationOffset() time.Duration {
	if c.Keys.RotationOffset > 0 {
		return c.Keys.RotationOffset
	}
	if c.IsProductionLike() {
		return 48 * time.Hour
	}
	return 12 * time.Hour
}

// Validate chequea combinaciones que impedirían arrancar.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Keys.RotationEnabled && !c.Registry.DevMode && c.Registry.URL == "" {
		errs = append(errs, errors.New("registry.url is required when rotation is enabled outside dev mode"))
	}
	if c.Registry.DevMode && c.IsProductionLike() {
		errs = append(errs, fmt.Errorf("registry.dev_mode is not allowed in %s", c.App.Env))
	}
	switch c.Cache.Kind {
	case "none", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for cache.kind=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind %q not supported", c.Cache.Kind))
	}
	switch c.Audit.Sink {
	case "log", "none":
	case "postgres", "both":
		if c.Audit.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("audit.postgres_dsn is required for audit.sink=%s", c.Audit.Sink))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.sink %q not supported", c.Audit.Sink))
	}
	return errors.Join(errs...)
}
