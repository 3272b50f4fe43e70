package processor

import (
	"context"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service"
	"fxgate/pkg/logger"

	"github.com/robfig/cron/v3"
)

const (
	sweepSchedule = "@every 1m"
	pruneSchedule = "@daily"
)

// cronLogger направляет служебные сообщения cron в zerolog
type cronLogger struct{}

func (cronLogger) Printf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

// CronScheduler - таймерный источник обновлений и фоновая очистка
type CronScheduler struct {
	cron      *cron.Cron
	scheduler service.RefreshSchedulerInterface
	rateSvc   service.RateServiceInterface
	webhooks  service.WebhookReconcilerInterface
}

func NewCronScheduler(
	scheduler service.RefreshSchedulerInterface,
	rateSvc service.RateServiceInterface,
	webhooks service.WebhookReconcilerInterface,
) *CronScheduler {
	cronLog := cron.VerbosePrintfLogger(cronLogger{})
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return &CronScheduler{
		cron:      c,
		scheduler: scheduler,
		rateSvc:   rateSvc,
		webhooks:  webhooks,
	}
}

// Start регистрирует задачи, запускает cron и выполняет первое обновление
func (s *CronScheduler) Start(ctx context.Context, schedule string) error {
	logger.Info().Str("schedule", schedule).Msg("Starting cron scheduler")

	if _, err := s.cron.AddFunc(schedule, func() { s.refresh(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(sweepSchedule, func() { s.sweep(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(pruneSchedule, s.prune); err != nil {
		return err
	}

	s.cron.Start()
	logger.Info().Msg("Cron scheduler started")

	logger.Info().Msg("Performing initial exchange rates update...")
	s.refresh(ctx)

	return nil
}

func (s *CronScheduler) Stop() {
	logger.Info().Msg("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info().Msg("Cron scheduler stopped")
}

func (s *CronScheduler) GetEntries() []cron.Entry {
	return s.cron.Entries()
}

func (s *CronScheduler) refresh(ctx context.Context) {
	result, err := s.scheduler.RefreshStale(service.WithTriggerSource(ctx, service.SourceScheduled))
	if err != nil {
		logger.Error().Err(err).Msg("Scheduled rate refresh failed")
		return
	}

	logger.Info().
		Int("updated", result.Count(entity.RefreshStatusUpdated)).
		Int("skipped", result.Count(entity.RefreshStatusSkipped)).
		Int("failed", result.Count(entity.RefreshStatusFailed)).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Scheduled rate refresh completed")
}

func (s *CronScheduler) sweep(ctx context.Context) {
	now := time.Now()
	jobs := s.scheduler.SweepJobs(now)
	events := s.webhooks.Sweep(ctx, now)
	if jobs > 0 || events > 0 {
		logger.Debug().
			Int("jobs", jobs).
			Int("webhook_entries", events).
			Msg("Swept expired refresh jobs and webhook entries")
	}
}

func (s *CronScheduler) prune() {
	s.rateSvc.PruneHistory(time.Now())
}
