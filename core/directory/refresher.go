package directory

import (
	"context"
	"time"

	"github.com/trezcool/rollbook/core"
)

type refreshable interface {
	Refresh(ctx context.Context) error
}

// Refresher rebuilds a directory on a fixed interval until its context is done.
type Refresher struct {
	dir      refreshable
	interval time.Duration
	timeout  time.Duration
	log      core.Logger
}

// NewRefresher bounds every refresh by timeout (interval when timeout <= 0).
func NewRefresher(dir *Directory, interval, timeout time.Duration, log core.Logger) *Refresher {
	if timeout <= 0 {
		timeout = interval
	}
	return &Refresher{dir: dir, interval: interval, timeout: timeout, log: log}
}

// RefreshNow runs one bounded refresh and logs its failure. The error is returned for callers that
// care, the process keeps serving the previous snapshot either way.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.dir.Refresh(ctx); err != nil {
		r.log.Error("directory refresh failed", err)
		return err
	}
	return nil
}

// Run blocks, refreshing on every tick, and returns when ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("directory refresher started", map[string]interface{}{"interval": r.interval.String()})
	for {
		select {
		case <-ticker.C:
			_ = r.RefreshNow(ctx)
		case <-ctx.Done():
			r.log.Info("directory refresher stopped")
			return
		}
	}
}
