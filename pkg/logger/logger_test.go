package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSensitiveKeysAreRedacted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core)

	log.Info("signup", "email", "a@b.com", "user_email", "x@y.z", "role", "client", "jwt_token", "abc")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["email"])
	assert.Equal(t, "[REDACTED]", fields["user_email"])
	assert.Equal(t, "[REDACTED]", fields["jwt_token"])
	assert.Equal(t, "client", fields["role"])
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core).With("component", "aggregates")

	log.Warn("recompute failed", "case_id", "c1")

	entry := logs.All()[0]
	assert.Equal(t, "recompute failed", entry.Message)
	assert.Equal(t, "aggregates", entry.ContextMap()["component"])
	assert.Equal(t, "c1", entry.ContextMap()["case_id"])
}
