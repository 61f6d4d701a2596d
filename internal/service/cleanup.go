package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/markdownpro2/edit-session-service/internal/errs"
	"github.com/markdownpro2/edit-session-service/internal/model"
)

// CleanupSweeper periodically evicts expired sessions from the registry and
// closes any sockets still attached to them. It never touches session content
// and performs no conversion.
type CleanupSweeper struct {
	registry *SessionRegistry
	interval time.Duration
	log      *zap.Logger
}

// NewCleanupSweeper creates a sweeper over the given registry.
func NewCleanupSweeper(registry *SessionRegistry, interval time.Duration, log *zap.Logger) *CleanupSweeper {
	return &CleanupSweeper{registry: registry, interval: interval, log: log}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (c *CleanupSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(time.Now())
		}
	}
}

// Sweep runs one eviction pass. Exposed separately so tests and shutdown paths
// can trigger it without the ticker.
func (c *CleanupSweeper) Sweep(now time.Time) {
	expired := c.registry.ExpireAll(now)
	if len(expired) == 0 {
		return
	}
	closed := 0
	for _, e := range expired {
		notice := model.NoticeFrame(e.SessionID, model.ActionSessionClosed, "", errs.Message(errs.CodeSessionExpired))
		for _, p := range e.Peers {
			p.Close(notice)
			closed++
		}
	}
	c.log.Info("cleanup sweep finished",
		zap.Int("sessions_evicted", len(expired)),
		zap.Int("sockets_closed", closed))
}
