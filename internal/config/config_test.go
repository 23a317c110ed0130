package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"LEARNING_RATE", "CASCADE_DEPTH", "CASCADE_FRACTION", "MAX_RETRIES", "RETRY_BASE_DELAY", "STORE_BACKEND", "DATABASE_URL"} {
		t.Setenv(k, "")
	}

	assert.Equal(t, 0.15, LearningRate())
	assert.Equal(t, 1, CascadeDepth())
	assert.Equal(t, 0.3, CascadeFraction())
	assert.Equal(t, 3, MaxRetries())
	assert.Equal(t, 500*time.Millisecond, RetryBaseDelay())
	assert.Equal(t, "memory", StoreBackend())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("LEARNING_RATE", "fast")
	t.Setenv("CASCADE_FRACTION", "1.5")
	t.Setenv("MAX_RETRIES", "-1")
	t.Setenv("RETRY_BASE_DELAY", "soon")

	assert.Equal(t, 0.15, LearningRate())
	assert.Equal(t, 0.3, CascadeFraction())
	assert.Equal(t, 3, MaxRetries())
	assert.Equal(t, 500*time.Millisecond, RetryBaseDelay())
}

func TestOverrides(t *testing.T) {
	t.Setenv("CASCADE_DEPTH", "0")
	t.Setenv("ESCALATION_SEVERITY", "0.8")
	t.Setenv("RETRY_BASE_DELAY", "2s")
	t.Setenv("DATABASE_URL", "postgres://localhost/tenet")
	t.Setenv("STORE_BACKEND", "")

	assert.Equal(t, 0, CascadeDepth())
	assert.Equal(t, 0.8, EscalationSeverity())
	assert.Equal(t, 2*time.Second, RetryBaseDelay())
	assert.Equal(t, "postgres", StoreBackend())

	t.Setenv("STORE_BACKEND", "memory")
	assert.Equal(t, "memory", StoreBackend())
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("UPDATE_SHARDS=3\n"), 0o600))
	require.NoError(t, os.WriteFile(path+".secret", []byte("OPENAI_API_KEY=sk-test\n"), 0o600))

	t.Setenv("TENET_ENV", path)
	t.Setenv("UPDATE_SHARDS", "")
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("UPDATE_SHARDS")
	os.Unsetenv("OPENAI_API_KEY")

	require.NoError(t, Load())
	assert.Equal(t, 3, UpdateShards())
	assert.Equal(t, "sk-test", OpenAIAPIKey())
}

func TestMemoryRetention(t *testing.T) {
	t.Setenv("MEMORY_SWEEP_INTERVAL", "")
	t.Setenv("MEMORY_RETENTION_AGE", "48h")
	t.Setenv("MEMORY_MIN_RETENTION", "2")

	assert.Equal(t, time.Hour, MemorySweepInterval())
	assert.Equal(t, 48*time.Hour, MemoryRetentionAge())
	assert.Equal(t, 0.1, MemoryMinRetention())

	t.Setenv("MEMORY_SWEEP_INTERVAL", "0s")
	assert.Zero(t, MemorySweepInterval())
}
