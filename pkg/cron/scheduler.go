// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/service"
)

// DefaultRefreshSpec refreshes spreadsheet-backed analyses at the top of every hour
const DefaultRefreshSpec = "0 * * * *"

const refreshTimeout = 15 * time.Minute

// Refresher recomputes every spreadsheet-backed analysis
type Refresher interface {
	RefreshAll(ctx context.Context) (service.RefreshSummary, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	spec      string
	logger    *slog.Logger
}

// NewScheduler creates a new job scheduler. An empty spec falls back to DefaultRefreshSpec.
func NewScheduler(refresher Refresher, spec string, logger *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultRefreshSpec
	}

	// Standard 5-field format, overlapping runs are skipped
	c := cron.New(
		cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:      c,
		refresher: refresher,
		spec:      spec,
		logger:    logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.refreshSheets); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("refresh_spec", s.spec),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers the spreadsheet refresh outside the schedule.
func (s *Scheduler) RunNow() {
	go s.refreshSheets()
}

// refreshSheets recomputes the scores of every spreadsheet-backed analysis.
func (s *Scheduler) refreshSheets() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	s.logger.Info("starting spreadsheet refresh")
	started := time.Now()

	summary, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		s.logger.Error("spreadsheet refresh failed",
			slog.Int("analyses_refreshed", summary.Refreshed),
			slog.Int("analyses_failed", summary.Failed),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Info("spreadsheet refresh completed",
		slog.Int("analyses_refreshed", summary.Refreshed),
		slog.Int("analyses_failed", summary.Failed),
		slog.Duration("took", time.Since(started)),
	)
}
