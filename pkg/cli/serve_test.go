package cli

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe_ServesUntilCanceled(t *testing.T) {
	t.Setenv("LATTICE_DB_DSN", "")
	t.Setenv("STATS_PROVIDER", "")
	t.Setenv("RATE_LIMIT_RPS", "")
	t.Setenv("LOG_LEVEL", "")

	var stdout, stderr syncBuffer
	rootCmd := newRootCmd()
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"serve", "--demo", "--driver", "sqlite3", "--listen", "127.0.0.1:0",
		"--env-file", filepath.Join(t.TempDir(), "missing.env")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rootCmd.ExecuteContext(ctx) }()

	var addr string
	require.Eventually(t, func() bool {
		out := stdout.String()
		if i := strings.Index(out, "listening on "); i >= 0 {
			addr = strings.TrimSpace(out[i+len("listening on "):])
			return true
		}
		return false
	}, 10*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/v1/lattices") //nolint:noctx
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Contains(t, stderr.String(), "http api stopped")
}
