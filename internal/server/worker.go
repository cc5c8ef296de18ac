package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/gridmesh/internal/config"
	"github.com/danmuck/gridmesh/internal/jobstore"
	"github.com/danmuck/gridmesh/internal/observability"
	"github.com/danmuck/gridmesh/internal/simulation"
)

const workerPollInterval = 500 * time.Millisecond

// runWorker claims pending jobs until the daemon shuts down. The store is
// the queue: a wake nudge after each submit keeps latency low, the ticker
// picks up anything the nudge missed.
func (s *Service) runWorker(ctx context.Context, id int) {
	logger := s.logger.With().Int("worker", id).Logger()
	ticker := time.NewTicker(workerPollInterval)
	defer ticker.Stop()

	s.drainPending(ctx, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
		s.drainPending(ctx, logger)
	}
}

func (s *Service) drainPending(ctx context.Context, logger zerolog.Logger) {
	for ctx.Err() == nil {
		job, err := s.store.NextPending(ctx)
		if errors.Is(err, jobstore.ErrUnknownJob) {
			return
		}
		if err != nil {
			logger.Error().Err(err).Msg("worker.poll failed")
			return
		}
		if err := s.store.MarkRunning(ctx, job.ID); err != nil {
			// another worker won the claim
			if errors.Is(err, jobstore.ErrConflict) {
				continue
			}
			logger.Error().Str("job_id", job.ID.String()).Err(err).Msg("worker.claim failed")
			return
		}
		s.runJob(ctx, logger, job)
	}
}

func (s *Service) runJob(ctx context.Context, logger zerolog.Logger, job jobstore.Job) {
	start := time.Now()
	logger.Info().Str("job_id", job.ID.String()).Str("name", job.Name).Msg("worker.job start")

	study, err := config.ParseStudyJSON(job.Study)
	if err != nil {
		s.failJob(logger, job, start, err)
		return
	}
	engine, err := simulation.NewEngine(study)
	if err != nil {
		s.failJob(logger, job, start, err)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout())
	defer cancel()
	result, err := engine.Run(runCtx)
	if err != nil {
		s.failJob(logger, job, start, err)
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		s.failJob(logger, job, start, err)
		return
	}
	// outcome writes get their own context so a shutdown mid-job still
	// records the job's fate
	markCtx, markCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer markCancel()
	if err := s.store.MarkDone(markCtx, job.ID, payload); err != nil {
		observability.RecordSolverJob("error", time.Since(start))
		logger.Error().Str("job_id", job.ID.String()).Err(err).Msg("worker.record result failed")
		return
	}
	observability.RecordSolverJob("ok", time.Since(start))
	logger.Info().
		Str("job_id", job.ID.String()).
		Int64("total_cost", result.TotalCost()).
		Int64("unserved", result.TotalUnserved()).
		Dur("duration", time.Since(start)).
		Msg("worker.job done")
}

func (s *Service) failJob(logger zerolog.Logger, job jobstore.Job, start time.Time, cause error) {
	markCtx, markCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer markCancel()
	if err := s.store.MarkFailed(markCtx, job.ID, cause.Error()); err != nil {
		logger.Error().Str("job_id", job.ID.String()).Err(err).Msg("worker.record failure failed")
	}
	observability.RecordSolverJob("failed", time.Since(start))
	logger.Warn().
		Str("job_id", job.ID.String()).
		Dur("duration", time.Since(start)).
		Err(cause).
		Msg("worker.job failed")
}
