package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicsched/clinicsched/libs/db"
	"github.com/robfig/cron/v3"
)

const (
	DefaultPruneSchedule = "@hourly"
	DefaultRetention     = 7 * 24 * time.Hour
)

// Pruner deletes published outbox rows older than the retention window on a
// cron schedule.
type Pruner struct {
	db        db.Querier
	repo      *Repository
	logger    *slog.Logger
	schedule  string
	retention time.Duration
	now       func() time.Time
}

func NewPruner(q db.Querier, repo *Repository, logger *slog.Logger, schedule string, retention time.Duration) (*Pruner, error) {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("outbox prune schedule %q: %w", schedule, err)
	}
	return &Pruner{
		db:        q,
		repo:      repo,
		logger:    logger,
		schedule:  schedule,
		retention: retention,
		now:       time.Now,
	}, nil
}

// PruneOnce runs a single deletion pass.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	return p.repo.PruneBefore(ctx, p.db, p.now().Add(-p.retention))
}

// Run blocks until ctx is done, pruning on every schedule tick.
func (p *Pruner) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(p.schedule, func() {
		n, err := p.PruneOnce(ctx)
		if err != nil {
			p.logger.Error("outbox prune failed", "err", err)
			return
		}
		if n > 0 {
			p.logger.Info("outbox pruned", "deleted", n)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
