package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the settings that can change while the gateway runs: the
// owner list, the log level and the default transaction timeout. Readers
// always see a consistent value.
type Store struct {
	path  string
	log   atomic.Pointer[slog.Logger]
	level *slog.LevelVar

	owners     atomic.Pointer[[]string]
	txnTimeout atomic.Int64
	reloads    atomic.Uint64
}

// NewStore seeds a Store from cfg. The returned LevelVar should back the
// process logger so level changes take effect immediately.
func NewStore(cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	lvl, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	s := &Store{path: cfg.File, level: new(slog.LevelVar)}
	s.log.Store(log)
	s.level.Set(lvl)
	owners := slices.Clone(cfg.Owners)
	s.owners.Store(&owners)
	s.txnTimeout.Store(int64(cfg.TransactionTimeout))
	return s, nil
}

// SetLogger replaces the logger reload events are written to. The process
// logger is usually built from Level, so it can only be handed in after
// NewStore returns.
func (s *Store) SetLogger(log *slog.Logger) {
	if log != nil {
		s.log.Store(log)
	}
}

// Level is the live log level.
func (s *Store) Level() *slog.LevelVar { return s.level }

// Owners returns a copy of the owner list.
func (s *Store) Owners() []string {
	return slices.Clone(*s.owners.Load())
}

func (s *Store) TransactionTimeout() time.Duration {
	return time.Duration(s.txnTimeout.Load())
}

// Reloads counts successful reloads.
func (s *Store) Reloads() uint64 { return s.reloads.Load() }

// Apply installs the hot-reloadable fields of f. Other fields need a
// restart and are ignored. Nothing is changed when f is invalid.
func (s *Store) Apply(f File) error {
	var (
		lvl     slog.Level
		timeout time.Duration
		err     error
	)
	if f.LogLevel != "" {
		if lvl, err = ParseLevel(f.LogLevel); err != nil {
			return err
		}
	}
	if f.TransactionTimeout != "" {
		if timeout, err = time.ParseDuration(f.TransactionTimeout); err != nil {
			return fmt.Errorf("config: transaction_timeout: %w", err)
		}
		if timeout <= 0 {
			return fmt.Errorf("config: transaction timeout must be positive, got %s", timeout)
		}
	}

	if f.LogLevel != "" {
		s.level.Set(lvl)
	}
	if timeout > 0 {
		s.txnTimeout.Store(int64(timeout))
	}
	if f.Owners != nil {
		owners := slices.Clone(f.Owners)
		s.owners.Store(&owners)
	}
	s.reloads.Add(1)
	return nil
}

// Reload re-reads the config file.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	f, err := ReadFile(s.path)
	if err != nil {
		return err
	}
	return s.Apply(f)
}

// Watch reloads the config file whenever it changes until ctx ends. The
// containing directory is watched so editors that replace the file are
// followed. Watch returns immediately when no file is configured.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	target := filepath.Clean(s.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.log.Load().WarnContext(ctx, "config.reload.fail", slog.String("err", err.Error()))
				continue
			}
			s.log.Load().InfoContext(ctx, "config.reload.ok",
				slog.String("level", s.level.Level().String()),
				slog.Int("owners", len(s.Owners())),
				slog.Duration("transaction_timeout", s.TransactionTimeout()),
			)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Load().DebugContext(ctx, "config.watch.err", slog.String("err", err.Error()))
		}
	}
}
