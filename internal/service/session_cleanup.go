package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultCleanupInterval = time.Hour

type sessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context) (int, error)
}

// SessionCleanupTask periodically drops expired session records for every
// user. It runs independently of the lazy timeout on validation.
type SessionCleanupTask struct {
	sessions sessionCleaner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSessionCleanupTask(sessions *SessionService, logger *slog.Logger, interval time.Duration) *SessionCleanupTask {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &SessionCleanupTask{
		sessions: sessions,
		logger:   logger.With("component", "session_cleanup"),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (t *SessionCleanupTask) Start(ctx context.Context) {
	t.logger.Info("starting session cleanup", "interval", t.interval)
	t.wg.Add(1)
	go t.run(ctx)
}

func (t *SessionCleanupTask) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
	t.logger.Info("session cleanup stopped")
}

func (t *SessionCleanupTask) run(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			_, _ = t.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and logs its outcome.
func (t *SessionCleanupTask) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	removed, err := t.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		t.logger.ErrorContext(ctx, "session cleanup failed", "removed", removed, "error", err)
		return removed, err
	}
	t.logger.InfoContext(ctx, "session cleanup completed", "removed", removed, "duration", time.Since(started))
	return removed, nil
}
