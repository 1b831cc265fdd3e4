// Package app cablea los componentes del nodo a partir de la configuración.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/proctoken/internal/audit"
	"github.com/dropDatabas3/proctoken/internal/cache"
	"github.com/dropDatabas3/proctoken/internal/config"
	healthctrl "github.com/dropDatabas3/proctoken/internal/http/controllers/health"
	keysctrl "github.com/dropDatabas3/proctoken/internal/http/controllers/keys"
	tokensctrl "github.com/dropDatabas3/proctoken/internal/http/controllers/tokens"
	"github.com/dropDatabas3/proctoken/internal/http/router"
	healthsvc "github.com/dropDatabas3/proctoken/internal/http/services/health"
	tokensvc "github.com/dropDatabas3/proctoken/internal/http/services/tokens"
	"github.com/dropDatabas3/proctoken/internal/jwt"
	"github.com/dropDatabas3/proctoken/internal/keyregistry"
	"github.com/dropDatabas3/proctoken/internal/keys"
	"github.com/dropDatabas3/proctoken/internal/metrics"
	"github.com/dropDatabas3/proctoken/internal/observability/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Container agrupa los componentes cableados del nodo.
type Container struct {
	Config    *config.Config
	Registry  *keyregistry.Client
	JWKs      *jwt.JWKCache
	Issuer    *jwt.Issuer
	Validator *jwt.Validator
	Manager   *keys.Manager
	Handler   http.Handler

	closers []func() error
}

// New construye el Container. No toca el registry: eso es StartupInitialize del manager.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logger.Named("app")
	c := &Container{Config: cfg}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	// 1) tier compartido de JWK (opcional)
	var shared cache.Client
	if cfg.Cache.Kind != "none" {
		cc, err := cache.New(cache.Config{
			Driver:   cfg.Cache.Kind,
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("jwk shared cache: %w", err)
		}
		shared = cc
		c.closers = append(c.closers, cc.Close)
		log.Info("jwk shared cache enabled", logger.String("kind", cfg.Cache.Kind))
	}

	// 2) registry + cache local (en dev el publish escribe directo en el cache)
	var tokenSource keyregistry.TokenSource
	if tok := cfg.Registry.BearerToken; tok != "" {
		tokenSource = func(context.Context) (string, error) { return tok, nil }
	}
	c.Registry = keyregistry.New(keyregistry.Config{
		BaseURL:      cfg.Registry.URL,
		Timeout:      cfg.Registry.Timeout,
		DevMode:      cfg.Registry.DevMode,
		RetryBackoff: cfg.Registry.RetryBackoff,
		TokenSource:  tokenSource,
	})
	c.JWKs = jwt.NewJWKCache(c.Registry, shared,
		// un reintento 5xx: dos requests más el backoff
		jwt.WithLookupTimeout(2*cfg.Registry.Timeout+cfg.Registry.RetryBackoff),
		jwt.WithFailurePolicy(cfg.Cache.FailedLookupTTL, cfg.Cache.MaxFailedLookups),
	)
	c.Registry.UseLocalStore(c.JWKs)
	if cfg.Registry.DevMode {
		log.Warn("key registry dev mode enabled, keys are only visible to this node")
	}

	// 3) audit
	publisher, auditCheck, err := c.buildAudit(ctx)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	// 4) issuer / validator / manager
	c.Issuer = jwt.NewIssuer()
	c.Validator = jwt.NewValidator(c.JWKs, publisher, jwt.ValidatorConfig{
		ServiceProductIDValidation: cfg.Validation.ProductIDValidation,
		ExpectedProductID:          cfg.Validation.ExpectedProductID,
	})
	c.Manager = keys.NewManager(keys.Config{
		RotationEnabled:   cfg.Keys.RotationEnabled,
		StartupHealthGate: cfg.Keys.StartupHealthGate,
		LifetimeDays:      cfg.Keys.LifetimeDays,
		ProductID:         cfg.Keys.ProductID,
		Interval:          cfg.RotationInterval(),
		Offset:            cfg.RotationOffset(),
	}, c.Issuer, c.Registry)

	// 5) HTTP
	tokens := tokensvc.NewTokenService(tokensvc.Deps{Issuer: c.Issuer, Validator: c.Validator, Rotation: c.Manager})
	hdeps := healthsvc.Deps{
		Readiness:  c.Manager,
		Issuer:     c.Issuer,
		AuditCheck: auditCheck,
		Version:    cfg.App.Version,
	}
	if shared != nil {
		hdeps.CacheCheck = shared.Ping
	}
	c.Handler = router.New(router.Deps{
		Tokens: tokensctrl.NewTokensController(tokens),
		Keys:   keysctrl.NewKeysController(tokens),
		Health: healthctrl.NewHealthController(healthsvc.NewHealthService(hdeps)),
	})
	return c, nil
}

// buildAudit arma el publisher según audit.sink. El check es nil si no hay sink durable.
func (c *Container) buildAudit(ctx context.Context) (audit.Publisher, func(context.Context) error, error) {
	sink := c.Config.Audit.Sink
	logPub := audit.NewLogPublisher(logger.Named("audit"))

	switch sink {
	case "none":
		return audit.Nop{}, nil, nil
	case "log":
		return logPub, nil, nil
	}

	pool, err := pgxpool.New(ctx, c.Config.Audit.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("audit postgres pool: %w", err)
	}
	c.closers = append(c.closers, func() error { pool.Close(); return nil })

	applied, err := audit.EnsureSchema(ctx, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("audit schema: %w", err)
	}
	logger.Named("app").Info("audit schema ready", logger.Int("applied", applied))

	pgPub := audit.NewPostgresPublisher(pool, audit.PostgresConfig{QueueSize: c.Config.Audit.QueueSize})
	// el publisher drena antes de cerrar el pool
	c.closers = append(c.closers, pgPub.Close)

	if sink == "both" {
		return audit.Multi{logPub, pgPub}, pool.Ping, nil
	}
	return pgPub, pool.Ping, nil
}

// Close libera recursos en orden inverso de creación.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
