package purge

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// runTimeout bounds one scheduled purge run.
const runTimeout = 5 * time.Minute

// Scheduler runs a fixed purge request on a cron schedule.
type Scheduler struct {
	engine  *Engine
	request Request
	cron    *cron.Cron
	logger  zerolog.Logger
}

// NewScheduler validates the cron expression and prepares the scheduler.
// Standard five-field expressions are accepted.
func NewScheduler(engine *Engine, expr string, request Request, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		engine:  engine,
		request: request,
		cron:    cron.New(),
		logger:  logger.With().Str("component", "purge_scheduler").Logger(),
	}

	if _, err := s.cron.AddFunc(expr, s.run); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", expr, err)
	}
	return s, nil
}

// Start begins scheduled execution.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Purge scheduler started")
}

// Stop halts scheduling and waits for a running purge to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Purge scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	result, err := s.engine.Run(ctx, s.request)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled purge failed")
		return
	}
	if !result.Success {
		s.logger.Warn().Strs("errors", result.Errors).Msg("Scheduled purge finished with batch errors")
	}
}
