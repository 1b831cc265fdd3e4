// Package audit recibe un evento por cada validación de token (éxito incluido).
package audit

import (
	"context"
	"time"

	"github.com/dropDatabas3/proctoken/internal/observability/logger"
	"go.uber.org/zap"
)

// Event describe el resultado de una validación.
// ReasonCode y KeyProductID son nil cuando no aplican.
type Event struct {
	OccurredAt                   time.Time
	KeyID                        string
	Message                      string
	ReasonCode                   *string
	ServiceProductIDValidation   bool
	RequestedProductIDValidation bool
	KeyProductID                 *string
	ExpectedProductID            string
}

// Publisher es el colaborador de auditoría. Publish no devuelve error: un sink caído
// no puede cambiar el resultado de una validación.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Nop descarta eventos.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Multi reparte cada evento a todos los publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// LogPublisher escribe el evento como log estructurado.
type LogPublisher struct {
	log *zap.Logger
}

// NewLogPublisher usa l o, si es nil, el logger "audit" del singleton.
func NewLogPublisher(l *zap.Logger) *LogPublisher {
	if l == nil {
		l = logger.Named("audit")
	}
	return &LogPublisher{log: l}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) {
	fields := []zap.Field{
		logger.KeyID(ev.KeyID),
		logger.Bool("service_product_id_validation", ev.ServiceProductIDValidation),
		logger.Bool("requested_product_id_validation", ev.RequestedProductIDValidation),
		logger.String("expected_product_id", ev.ExpectedProductID),
	}
	if ev.KeyProductID != nil {
		fields = append(fields, logger.ProductID(*ev.KeyProductID))
	}
	if ev.ReasonCode == nil {
		p.log.Info(ev.Message, fields...)
		return
	}
	fields = append(fields, logger.ReasonCode(*ev.ReasonCode))
	p.log.Warn(ev.Message, fields...)
}
