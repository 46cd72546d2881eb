package logging

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/ledgerd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Underlying())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestNewLogger_OTELOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = true

	_, err := NewLogger(cfg, nil)
	assert.Error(t, err, "no core is available without a provider")
}

func TestConfigFromObservability(t *testing.T) {
	cfg, err := ConfigFromObservability(config.ObservabilityConfig{
		ServiceName: "ledgerd-test",
		LogLevel:    "debug",
		LogFormat:   "console",
	})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "ledgerd-test", cfg.Fields["service"])

	_, err = ConfigFromObservability(config.ObservabilityConfig{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestLogger_ContextFieldsInjected(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithCorrelation(context.Background(), Correlation{TenantID: "t1", UserID: "u1"})
	ctx = WithCorrelation(ctx, Correlation{ConversationID: "c1"})
	ctx = WithRequestID(ctx, "req-9")

	tl.Info(ctx, "message processed", zap.Int("actions", 2))

	tl.AssertLogged(t, zapcore.InfoLevel, "message processed")
	tl.AssertField(t, "message processed", "tenant.id", "t1")
	tl.AssertField(t, "message processed", "user.id", "u1")
	tl.AssertField(t, "message processed", "conversation.id", "c1")
	tl.AssertField(t, "message processed", "request.id", "req-9")
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	l.Info(context.Background(), "discarded")

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "kept")
	tl.AssertLogged(t, zapcore.WarnLevel, "kept")
}
