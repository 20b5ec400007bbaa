package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-post-generator/internal/adapter/observability"
)

// Sweeper deletes uploaded artifacts older than MaxAge.
type Sweeper struct {
	Dir    string
	MaxAge time.Duration
	now    func() time.Time
	remove func(string) error
}

// NewSweeper creates a sweeper for dir.
func NewSweeper(dir string, maxAge time.Duration) *Sweeper {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &Sweeper{Dir: dir, MaxAge: maxAge, now: time.Now, remove: os.Remove}
}

// SweepOnce removes every regular file in Dir whose modification time is more
// than MaxAge ago. Failures on individual files are logged and counted but do
// not stop the sweep. An error is returned only when Dir cannot be listed.
func (s *Sweeper) SweepOnce(ctx context.Context) (deleted, failed int, err error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return 0, 0, fmt.Errorf("op=sweeper.readdir: %w", err)
	}
	now := s.now()
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if e.IsDir() {
			continue
		}
		p := filepath.Join(s.Dir, e.Name())
		info, ierr := e.Info()
		if ierr != nil {
			failed++
			slog.Error("sweeper stat failed", slog.String("path", p), slog.Any("error", ierr))
			continue
		}
		if now.Sub(info.ModTime()) <= s.MaxAge {
			continue
		}
		if rerr := s.remove(p); rerr != nil {
			failed++
			slog.Error("sweeper remove failed", slog.String("path", p), slog.Any("error", rerr))
			continue
		}
		deleted++
	}
	observability.SweepResult(deleted, failed)
	slog.Info("upload sweep completed",
		slog.Int("deleted", deleted),
		slog.Int("failed", failed),
		slog.Duration("max_age", s.MaxAge))
	return deleted, failed, nil
}

// RunPeriodic sweeps every interval until ctx is cancelled.
func (s *Sweeper) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("upload sweeper stopping")
			return
		case <-ticker.C:
			if _, _, err := s.SweepOnce(ctx); err != nil {
				slog.Error("periodic sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Start runs RunPeriodic in a goroutine. The returned stop function cancels
// the loop and blocks until it has exited.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunPeriodic(ctx, interval)
	}()
	slog.Info("upload sweeper started", slog.String("dir", s.Dir), slog.Duration("interval", interval), slog.Duration("max_age", s.MaxAge))
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
