package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"coopledger/internal/logger"
)

// Scheduler scans the inbox on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.SugaredLogger
}

// NewScheduler registers importer under spec, a standard five-field cron
// expression or a descriptor such as "@every 15m".
func NewScheduler(spec string, importer *InboxImporter) (*Scheduler, error) {
	log := logger.Named("scheduler")
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, err := importer.ScanOnce(context.Background()); err != nil {
			log.Errorw("scheduled inbox scan failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid inbox schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infow("inbox scheduler started", "entries", len(s.cron.Entries()))
}

// Stop stops the schedule and waits for a running scan, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
