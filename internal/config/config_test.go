package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/guardian/internal/guard"
)

func TestParse_EmptyFileMatchesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""), "empty.cue")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_OverridesDefaults(t *testing.T) {
	src := `
backend:         "mailbox"
acquire_timeout: "250ms"
log_level:       "debug"
journal:         "runs.db"
stress: workers: 4
`
	cfg, err := Parse([]byte(src), "guardian.cue")
	require.NoError(t, err)

	assert.Equal(t, guard.BackendMailbox, cfg.BackendKind())
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "runs.db", cfg.Journal)
	assert.Equal(t, StressConfig{Workers: 4, Ops: 100, Stock: 50}, cfg.Stress)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown backend", `backend: "spinlock"`},
		{"unknown field", `retries: 3`},
		{"zero workers", `stress: workers: 0`},
		{"negative stock", `stress: stock: -1`},
		{"wrong type", `stress: ops: "many"`},
		{"bad duration", `acquire_timeout: "soon"`},
		{"negative duration", `acquire_timeout: "-1s"`},
		{"unknown log level", `log_level: "trace"`},
		{"syntax error", `backend: `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.cue")
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path gives defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "guardian.cue")
		require.NoError(t, os.WriteFile(path, []byte(`stress: ops: 7`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Stress.Ops)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.cue"))
		assert.Error(t, err)
	})
}

func TestStoreOptions_AppliesTimeout(t *testing.T) {
	cfg, err := Parse([]byte(`acquire_timeout: "20ms"`), "guardian.cue")
	require.NoError(t, err)

	st := guard.NewMutex(0, cfg.StoreOptions(slog.Default())...)
	defer st.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = st.Update(context.Background(), func(n int) (int, error) {
			close(entered)
			<-release
			return n, nil
		})
	}()
	<-entered
	defer close(release)

	err = st.Update(context.Background(), func(n int) (int, error) { return n + 1, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
