package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	paymentErrors "github.com/avika/achexport/internal/payment/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// BatchScheduler builds the previous UTC day's batch on a cron schedule.
type BatchScheduler struct {
	cron     *cron.Cron
	builder  BatchBuilderInterface
	schedule string
	run      int
	logger   *zap.Logger
	now      func() time.Time
}

func NewBatchScheduler(builder BatchBuilderInterface, schedule string, run int, logger *zap.Logger) *BatchScheduler {
	cronLogger := zapCronLogger{logger: logger.Sugar()}
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cronLogger)), cron.WithLogger(cronLogger))

	return &BatchScheduler{
		cron:     c,
		builder:  builder,
		schedule: schedule,
		run:      run,
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the daily job and starts the scheduler.
func (s *BatchScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { _ = s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("invalid batch schedule %q: %w", s.schedule, err)
	}
	s.logger.Info("Scheduled daily batch export", zap.String("schedule", s.schedule), zap.Int("run", s.run))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *BatchScheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce builds yesterday's batch. Nothing to export and an already written
// run are expected outcomes and only logged at info level.
func (s *BatchScheduler) RunOnce(ctx context.Context) error {
	date := s.now().UTC().AddDate(0, 0, -1)
	path, err := s.builder.Build(ctx, date, BatchOptions{RunNumber: s.run})
	switch {
	case err == nil:
		s.logger.Info("Scheduled batch export finished", zap.String("path", path))
	case errors.Is(err, paymentErrors.ErrEmptyBatch), errors.Is(err, paymentErrors.ErrRunExists):
		s.logger.Info("Scheduled batch export skipped", zap.String("date", date.Format("2006-01-02")), zap.String("reason", err.Error()))
	default:
		s.logger.Error("Scheduled batch export failed", zap.String("date", date.Format("2006-01-02")), zap.Error(err))
	}
	return err
}

type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
