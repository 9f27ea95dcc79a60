package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKVsRedactsCredentials(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"driver", "postgres",
		"postgres_dsn", "postgres://loader:hunter2@db:5432/tracebase",
		"s3_secret_key", "abc",
		"dangling",
	})
	require.Len(t, out, 7)
	assert.Equal(t, "postgres", out[1])
	assert.Equal(t, "postgres://loader:REDACTED@db:5432/tracebase", out[3])
	assert.Equal(t, "[REDACTED]", out[5])
	assert.Equal(t, "dangling", out[6])
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"development", "production", ""} {
		l, err := New(mode)
		require.NoError(t, err, mode)
		l.With("mode", mode).Debug("built")
	}
	Nop().Info("discarded", "k", "v")
}
