package events

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// Pruner deletes rows older than a cutoff and reports how many went.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Retention periodically prunes delivered outbox rows and dedupe records.
type Retention struct {
	keep     time.Duration
	interval time.Duration
	pruners  map[string]Pruner
	logger   *logging.Logger
	now      func() time.Time
}

func NewRetention(keep time.Duration, logger *logging.Logger) *Retention {
	if logger == nil {
		logger = logging.Default()
	}
	return &Retention{
		keep:     keep,
		interval: time.Hour,
		pruners:  map[string]Pruner{},
		logger:   logger,
		now:      time.Now,
	}
}

// With registers a named pruner; name shows up in logs.
func (r *Retention) With(name string, p Pruner) *Retention {
	if p != nil {
		r.pruners[name] = p
	}
	return r
}

func (r *Retention) WithInterval(interval time.Duration) *Retention {
	if interval > 0 {
		r.interval = interval
	}
	return r
}

// RunOnce prunes every registered table and returns the total removed.
func (r *Retention) RunOnce(ctx context.Context) int64 {
	if r.keep <= 0 {
		return 0
	}
	before := r.now().Add(-r.keep)
	var total int64
	for name, p := range r.pruners {
		n, err := p.Prune(ctx, before)
		if err != nil {
			r.logger.Error("retention prune failed", "table", name, "error", err)
			continue
		}
		if n > 0 {
			r.logger.Info("retention pruned rows", "table", name, "rows", n, "before", before.Format(time.RFC3339))
		}
		total += n
	}
	return total
}

// Start prunes once immediately, then on every interval until ctx is done.
func (r *Retention) Start(ctx context.Context) {
	if r.keep <= 0 || len(r.pruners) == 0 {
		return
	}
	r.RunOnce(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}
