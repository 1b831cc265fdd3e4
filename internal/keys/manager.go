// Package keys maneja el ciclo de vida de la clave de firma: genera, publica en el
// key registry y activa en el Issuer. Es el único escritor de la clave activa.
package keys

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dropDatabas3/proctoken/internal/jwt"
	"github.com/dropDatabas3/proctoken/internal/keyregistry"
	"github.com/dropDatabas3/proctoken/internal/metrics"
	"github.com/dropDatabas3/proctoken/internal/observability/logger"
	"go.uber.org/zap"
)

var (
	ErrRotationNotConfigured = errors.New("key_rotation_not_configured")
	ErrStartupPublishFailed  = errors.New("startup_key_publish_failed")
)

const (
	defaultStartupRetries = 2
	defaultStartupBackoff = time.Second
)

// Publisher es el lado escritura del key registry.
type Publisher interface {
	Publish(ctx context.Context, kid string, material []byte) keyregistry.PublishResult
}

// Generator crea un KeyModel nuevo. jwt.GenerateKeyModel en producción.
type Generator func(productID string, lifetimeDays int, now time.Time) (*jwt.KeyModel, error)

// Config del manager.
type Config struct {
	RotationEnabled   bool
	StartupHealthGate bool
	LifetimeDays      int
	ProductID         string

	// Interval del worker y Offset de anticipación antes de la expiración.
	Interval time.Duration
	Offset   time.Duration

	// StartupRetries reintentos extra del publish de arranque (0 = default 2, negativo = ninguno).
	StartupRetries int
	StartupBackoff time.Duration
}

// RotationState es el snapshot inmutable de la última rotación.
// Status 0 = nunca se publicó con éxito.
type RotationState struct {
	Status int
	Expiry int64
	KeyID  string
}

// Succeeded indica que Status es 2xx.
func (s RotationState) Succeeded() bool { return keyregistry.IsSuccess(s.Status) }

// Manager rota la clave de firma.
type Manager struct {
	cfg      Config
	issuer   *jwt.Issuer
	registry Publisher
	generate Generator
	now      func() time.Time
	log      *zap.Logger

	rotating atomic.Bool
	ready    atomic.Bool
	state    atomic.Pointer[RotationState]
}

func NewManager(cfg Config, issuer *jwt.Issuer, registry Publisher) *Manager {
	if cfg.StartupRetries < 0 {
		cfg.StartupRetries = 0
	} else if cfg.StartupRetries == 0 {
		cfg.StartupRetries = defaultStartupRetries
	}
	if cfg.StartupBackoff <= 0 {
		cfg.StartupBackoff = defaultStartupBackoff
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	m := &Manager{
		cfg:      cfg,
		issuer:   issuer,
		registry: registry,
		generate: jwt.GenerateKeyModel,
		now:      time.Now,
		log:      logger.Named("keys"),
	}
	m.ready.Store(true)
	m.state.Store(&RotationState{})
	metrics.SetReady(true)
	return m
}

// StartupInitialize corre una vez antes de servir. Devuelve error solo cuando el nodo
// no debe arrancar (health gate requerido).
func (m *Manager) StartupInitialize(ctx context.Context) error {
	log := m.log.With(logger.Op("StartupInitialize"))

	if !m.cfg.RotationEnabled || m.cfg.ProductID == "" {
		m.rotating.Store(false)
		if m.cfg.StartupHealthGate {
			m.setReady(false)
			log.Error("key rotation not configured and startup health gate is required",
				logger.Bool("rotation_enabled", m.cfg.RotationEnabled), logger.ProductID(m.cfg.ProductID))
			return ErrRotationNotConfigured
		}
		log.Info("key rotation disabled, node will not issue tokens")
		return nil
	}
	m.rotating.Store(true)

	attempt := 0
	op := func() error {
		attempt++
		err := m.rotate(ctx)
		if err != nil {
			log.Warn("startup key publish failed", logger.Attempt(attempt), logger.Err(err))
		}
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.cfg.StartupBackoff), uint64(m.cfg.StartupRetries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		if m.cfg.StartupHealthGate {
			m.setReady(false)
			return fmt.Errorf("%w after %d attempts: %v", ErrStartupPublishFailed, attempt, err)
		}
		log.Error("startup key publish failed, continuing without active key",
			logger.Attempt(attempt), logger.Err(err))
		return nil
	}
	log.Info("signing key active", logger.KeyID(m.State().KeyID), logger.ExpiresAt(m.State().Expiry))
	return nil
}

// RotateIfNeeded hace a lo sumo un intento de generate+publish si la rotación está vencida.
func (m *Manager) RotateIfNeeded(ctx context.Context) error {
	if !m.rotating.Load() {
		return nil
	}
	if !m.due(m.now()) {
		return nil
	}
	if err := m.rotate(ctx); err != nil {
		// se queda la clave anterior; reintenta en el próximo tick
		m.log.Warn("key rotation failed", logger.Op("RotateIfNeeded"), logger.Err(err))
		return err
	}
	return nil
}

// due: último publish no exitoso, o now >= expiry - offset.
func (m *Manager) due(now time.Time) bool {
	st := m.state.Load()
	if !st.Succeeded() {
		return true
	}
	return !now.Before(time.Unix(st.Expiry, 0).Add(-m.cfg.Offset))
}

func (m *Manager) rotate(ctx context.Context) error {
	now := m.now()
	km, err := m.generate(m.cfg.ProductID, jwt.ClampLifetimeDays(m.cfg.LifetimeDays), now)
	if err != nil {
		metrics.RecordRotation("generate_failed")
		return fmt.Errorf("generate key: %w", err)
	}

	res := m.registry.Publish(ctx, km.KeyID(), km.PublicMaterial())
	if !res.Succeeded() {
		metrics.RecordRotation("publish_failed")
		prev := m.state.Load()
		m.state.Store(&RotationState{Status: res.StatusCode, Expiry: prev.Expiry, KeyID: prev.KeyID})
		if res.TransportErr != nil {
			return fmt.Errorf("publish %s: %w", km.KeyID(), res.TransportErr)
		}
		return fmt.Errorf("publish %s: registry status %d: %s", km.KeyID(), res.StatusCode, res.Body)
	}

	// primero la clave, después el estado: un lector que ve status 2xx siempre ve la clave nueva
	m.issuer.SetActive(km)
	m.state.Store(&RotationState{Status: res.StatusCode, Expiry: km.ExpiresAt(), KeyID: km.KeyID()})
	metrics.RecordRotation("published")
	metrics.ActiveKeyExpiry.Set(float64(km.ExpiresAt()))
	m.log.Info("signing key rotated", logger.KeyID(km.KeyID()), logger.ExpiresAt(km.ExpiresAt()), logger.Status(res.StatusCode))
	return nil
}

// Run es el worker periódico. Termina cuando ctx se cancela.
func (m *Manager) Run(ctx context.Context) error {
	if !m.rotating.Load() {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.log.Info("key rotation worker started", logger.Any("interval", m.cfg.Interval), logger.Any("offset", m.cfg.Offset))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = m.RotateIfNeeded(ctx)
		}
	}
}

// IsReady es el flag de readiness. Solo el health gate de arranque lo baja.
func (m *Manager) IsReady() bool { return m.ready.Load() }

// State devuelve el snapshot actual.
func (m *Manager) State() RotationState { return *m.state.Load() }

// Rotating indica si el manager rota claves.
func (m *Manager) Rotating() bool { return m.rotating.Load() }

func (m *Manager) setReady(v bool) {
	m.ready.Store(v)
	metrics.SetReady(v)
}
