package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct{ events []Event }

func (r *recorder) Publish(_ context.Context, ev Event) { r.events = append(r.events, ev) }

func strp(s string) *string { return &s }

func TestLogPublisher_SuccessAndFailureLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewLogPublisher(zap.New(core))

	p.Publish(context.Background(), Event{KeyID: "k1", Message: "Token is valid", ExpectedProductID: "beta"})
	p.Publish(context.Background(), Event{
		KeyID:             "k2",
		Message:           "Product id mismatch",
		ReasonCode:        strp("JWT_PRODUCTID_MISMATCH"),
		KeyProductID:      strp("alpha"),
		ExpectedProductID: "beta",
	})

	require.Equal(t, 2, logs.Len())
	ok := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, ok.Level)
	_, hasReason := ok.ContextMap()["reason_code"]
	assert.False(t, hasReason)

	bad := logs.All()[1]
	assert.Equal(t, zapcore.WarnLevel, bad.Level)
	assert.Equal(t, "JWT_PRODUCTID_MISMATCH", bad.ContextMap()["reason_code"])
	assert.Equal(t, "alpha", bad.ContextMap()["product_id"])
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, nil, b, Nop{}}
	m.Publish(context.Background(), Event{Message: "x"})
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestMigrationFilesAreEmbedded(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_token_validation_events_up.sql", files[0])
}
