package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KRITOR_CONFIG", "")
	t.Setenv("KRITOR_OWNERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":7890", cfg.ListenAddr)
	require.Equal(t, StorageMemory, cfg.Storage)
	require.Equal(t, 30*time.Second, cfg.TransactionTimeout)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.Warmup)
}

func TestLoad_EnvironmentAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kritor.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
owner = ["12345", "u_admin"]
log_level = "debug"
transaction_timeout = "45s"
`), 0o600))

	t.Setenv("KRITOR_CONFIG", path)
	t.Setenv("KRITOR_STORAGE", "redis")
	t.Setenv("KRITOR_OWNERS", "1;2")
	t.Setenv("KRITOR_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StorageRedis, cfg.Storage)
	require.Equal(t, []string{"12345", "u_admin"}, cfg.Owners)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 45*time.Second, cfg.TransactionTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("KRITOR_CONFIG", "")
	t.Setenv("KRITOR_STORAGE", "sqlite")
	t.Setenv("KRITOR_LOG_LEVEL", "loud")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown storage backend "sqlite"`)
	require.Contains(t, err.Error(), `log level "loud"`)
}

func TestStore_ApplyIsAllOrNothing(t *testing.T) {
	s, err := NewStore(Config{LogLevel: "info", TransactionTimeout: time.Second, Owners: []string{"a"}}, nil)
	require.NoError(t, err)

	require.Error(t, s.Apply(File{LogLevel: "debug", TransactionTimeout: "soon"}))
	require.Equal(t, slog.LevelInfo, s.Level().Level())
	require.Equal(t, time.Second, s.TransactionTimeout())

	require.NoError(t, s.Apply(File{LogLevel: "debug", Owners: []string{"b", "c"}}))
	require.Equal(t, slog.LevelDebug, s.Level().Level())
	require.Equal(t, []string{"b", "c"}, s.Owners())
	require.Equal(t, time.Second, s.TransactionTimeout())

	owners := s.Owners()
	owners[0] = "mutated"
	require.Equal(t, []string{"b", "c"}, s.Owners())
}

func TestStore_WatchReloadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kritor.toml")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "info"`), 0o600))

	s, err := NewStore(Config{File: path, LogLevel: "info", TransactionTimeout: time.Second}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// the watcher may not be armed yet; keep rewriting until it notices
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("log_level = \"error\"\nowner = [\"42\"]\ntransaction_timeout = \"2m\"\n"), 0o600)
		return s.Level().Level() == slog.LevelError
	}, 3*time.Second, 50*time.Millisecond)
	require.Equal(t, []string{"42"}, s.Owners())
	require.Equal(t, 2*time.Minute, s.TransactionTimeout())
}

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

func TestStore_SetLoggerReceivesReloadEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kritor.toml")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "info"`), 0o600))

	s, err := NewStore(Config{File: path, LogLevel: "info", TransactionTimeout: time.Second}, nil)
	require.NoError(t, err)

	var out syncBuffer
	s.SetLogger(slog.New(slog.NewTextHandler(&out, nil)))
	s.SetLogger(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("log_level = \"warn\"\n"), 0o600)
		return strings.Contains(out.String(), "msg=config.reload.ok")
	}, 3*time.Second, 50*time.Millisecond)
	require.Contains(t, out.String(), "level=WARN")
}
