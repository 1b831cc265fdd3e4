package audit

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/proctoken/internal/observability/logger"
	migrations "github.com/dropDatabas3/proctoken/migrations/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 3 * time.Second
	// "procaudt" en ASCII; todos los nodos comparten el mismo lock.
	migrationLockID int64 = 0x7072_6f63_6175_6474
)

// PostgresPublisher persiste eventos en token_validation_events.
// Publish encola sin bloquear; un worker escribe en background. Si la cola está llena
// el evento se descarta y se loguea.
type PostgresPublisher struct {
	pool    *pgxpool.Pool
	queue   chan Event
	timeout time.Duration
	log     *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

// PostgresConfig configura el sink.
type PostgresConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// NewPostgresPublisher arranca el worker de escritura sobre pool.
func NewPostgresPublisher(pool *pgxpool.Pool, cfg PostgresConfig) *PostgresPublisher {
	qs := cfg.QueueSize
	if qs <= 0 {
		qs = defaultQueueSize
	}
	wt := cfg.WriteTimeout
	if wt <= 0 {
		wt = defaultWriteTimeout
	}
	p := &PostgresPublisher{
		pool:    pool,
		queue:   make(chan Event, qs),
		timeout: wt,
		log:     logger.Named("audit.pg"),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *PostgresPublisher) Publish(_ context.Context, ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case p.queue <- ev:
	default:
		p.log.Warn("audit queue full, dropping event", logger.KeyID(ev.KeyID))
	}
}

// Close drena la cola y espera al worker.
func (p *PostgresPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	<-p.done
	return nil
}

func (p *PostgresPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.insert(ctx, ev); err != nil {
			p.log.Error("audit insert failed", logger.KeyID(ev.KeyID), logger.Err(err))
		}
		cancel()
	}
}

func (p *PostgresPublisher) insert(ctx context.Context, ev Event) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO token_validation_events
			(occurred_at, kid, message, reason_code, service_product_id_validation,
			 requested_product_id_validation, key_product_id, expected_product_id)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)`,
		ev.OccurredAt, ev.KeyID, ev.Message, ev.ReasonCode, ev.ServiceProductIDValidation,
		ev.RequestedProductIDValidation, ev.KeyProductID, ev.ExpectedProductID,
	)
	return err
}

// EnsureSchema aplica las migraciones embebidas que falten, bajo advisory lock
// para que varios nodos arrancando a la vez no compitan. Devuelve cuántas aplicó.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "select pg_advisory_lock($1)", migrationLockID); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "select pg_advisory_unlock($1)", migrationLockID); err != nil {
			logger.Named("audit.pg").Warn("failed to release migration lock", logger.Err(err))
		}
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return 0, err
	}

	files, err := migrationFiles()
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, name := range files {
		var exists bool
		if err := conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)", name).Scan(&exists); err != nil {
			return applied, err
		}
		if exists {
			continue
		}
		body, err := fs.ReadFile(migrations.AuditFS, migrations.AuditDir+"/"+name)
		if err != nil {
			return applied, err
		}
		tx, err := conn.Begin(ctx)
		if err != nil {
			return applied, err
		}
		if _, err := tx.Exec(ctx, string(body)); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations(version) VALUES ($1)", name); err != nil {
			_ = tx.Rollback(ctx)
			return applied, err
		}
		if err := tx.Commit(ctx); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// migrationFiles lista los *_up.sql embebidos en orden lexicográfico.
func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrations.AuditFS, migrations.AuditDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "_up.sql") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
