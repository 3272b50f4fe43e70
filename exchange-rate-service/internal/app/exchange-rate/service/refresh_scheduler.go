package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/infrastructure/provider"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/repository"
	"fxgate/pkg/logger"
	"fxgate/pkg/metrics"

	"github.com/google/uuid"
)

const (
	SourceScheduled = "scheduled"
	SourceManual    = "manual"
	SourceKafka     = "kafka"
	SourceAPI       = "api"
)

type triggerSourceKey struct{}

// WithTriggerSource помечает, кто запросил обновление (попадает в журнал обновлений)
func WithTriggerSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, triggerSourceKey{}, source)
}

func triggerSource(ctx context.Context) string {
	if s, ok := ctx.Value(triggerSourceKey{}).(string); ok && s != "" {
		return s
	}
	return SourceAPI
}

// RefreshSchedulerConfig - параметры планировщика обновлений
type RefreshSchedulerConfig struct {
	BaseCurrency    string
	TTL             time.Duration
	MaxTaskDuration time.Duration
	// FailureCooldown - после ошибки провайдера обычное обновление валюты ждет следующего тика, force - нет
	FailureCooldown time.Duration
	JobRetention    time.Duration
}

// refreshTask - одна выборка у провайдера для набора валют.
// outcomes пишется один раз до close(done), ожидающие читают его после done.
type refreshTask struct {
	id         string
	source     string
	currencies []string
	force      bool
	startedAt  time.Time
	done       chan struct{}
	once       sync.Once
	outcomes   map[string]entity.CurrencyRefresh
}

func (t *refreshTask) outcome(code string) entity.CurrencyRefresh {
	if o, ok := t.outcomes[code]; ok {
		return o
	}
	return entity.CurrencyRefresh{Status: entity.RefreshStatusFailed, TaskID: t.id, Error: "no result for currency"}
}

// RefreshScheduler - единственный путь обновления курсов из провайдера.
// Для каждой валюты в любой момент идет не больше одной выборки: вызывающие
// присоединяются к уже идущей задаче, для оставшихся валют создается одна общая задача.
type RefreshScheduler struct {
	store      *repository.RateStore
	provider   provider.RateProvider
	updateLogs repository.UpdateLogRepository
	snapshots  repository.RateSnapshotRepository
	publisher  EventPublisher
	cfg        RefreshSchedulerConfig
	now        func() time.Time

	mu          sync.Mutex
	inflight    map[string]*refreshTask
	lastFailure map[string]time.Time

	jobsMu sync.RWMutex
	jobs   map[string]*entity.RefreshJob
}

// NewRefreshScheduler создает планировщик. updateLogs, snapshots и publisher могут быть nil.
func NewRefreshScheduler(
	store *repository.RateStore,
	rateProvider provider.RateProvider,
	updateLogs repository.UpdateLogRepository,
	snapshots repository.RateSnapshotRepository,
	publisher EventPublisher,
	cfg RefreshSchedulerConfig,
) *RefreshScheduler {
	if cfg.MaxTaskDuration <= 0 {
		cfg.MaxTaskDuration = 30 * time.Second
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = time.Hour
	}

	return &RefreshScheduler{
		store:       store,
		provider:    rateProvider,
		updateLogs:  updateLogs,
		snapshots:   snapshots,
		publisher:   publisher,
		cfg:         cfg,
		now:         time.Now,
		inflight:    make(map[string]*refreshTask),
		lastFailure: make(map[string]time.Time),
		jobs:        make(map[string]*entity.RefreshJob),
	}
}

type taskWait struct {
	task   *refreshTask
	codes  []string
	joined bool
}

// TriggerRefresh обновляет курсы и ждет результата.
// Пустой список - все зарегистрированные валюты. Без force свежие курсы пропускаются.
// Отмена ctx прерывает только ожидание, сама задача доводится до конца.
func (s *RefreshScheduler) TriggerRefresh(ctx context.Context, currencies []string, force bool) (*entity.RefreshResult, error) {
	codes, err := s.resolveCurrencies(currencies)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &entity.RefreshResult{
		Currencies: make(map[string]entity.CurrencyRefresh, len(codes)),
		StartedAt:  now,
	}

	joined := make(map[*refreshTask][]string)
	var missing []string
	var task *refreshTask

	// Свежесть проверяется под мьютексом реестра: задача публикует курс до снятия
	// из реестра, поэтому валюта всегда либо в полете, либо уже свежая
	s.mu.Lock()
	for _, code := range codes {
		if !force && !s.store.IsStale(code, now) {
			result.Currencies[code] = entity.CurrencyRefresh{Status: entity.RefreshStatusSkipped}
			continue
		}
		if t := s.inflight[code]; t != nil {
			joined[t] = append(joined[t], code)
			continue
		}
		if failedAt, ok := s.lastFailure[code]; ok && !force && now.Sub(failedAt) < s.cfg.FailureCooldown {
			result.Currencies[code] = entity.CurrencyRefresh{
				Status: entity.RefreshStatusSkipped,
				Error:  "recent upstream failure, waiting for next scheduled refresh",
			}
			continue
		}
		missing = append(missing, code)
	}
	if len(missing) > 0 {
		task = s.newTask(ctx, missing, force, now)
		for _, code := range missing {
			s.inflight[code] = task
		}
	}
	s.mu.Unlock()

	waits := make([]taskWait, 0, len(joined)+1)
	if task != nil {
		s.start(task)
		waits = append(waits, taskWait{task: task, codes: missing})
	}
	for t, joinedCodes := range joined {
		metrics.RefreshJoins.Add(float64(len(joinedCodes)))
		logger.Debug().
			Str("task_id", t.id).
			Strs("currencies", joinedCodes).
			Msg("Joined in-flight refresh task")
		waits = append(waits, taskWait{task: t, codes: joinedCodes, joined: true})
	}

	for _, w := range waits {
		select {
		case <-w.task.done:
			for _, code := range w.codes {
				o := w.task.outcome(code)
				o.Joined = w.joined
				result.Currencies[code] = o
			}
		case <-ctx.Done():
			result.FinishedAt = s.now()
			return result, ctx.Err()
		}
	}

	result.FinishedAt = s.now()
	return result, nil
}

// RefreshStale - фоновый тик: все валюты, только устаревшие
func (s *RefreshScheduler) RefreshStale(ctx context.Context) (*entity.RefreshResult, error) {
	return s.TriggerRefresh(ctx, nil, false)
}

// InFlight - количество выполняющихся задач
func (s *RefreshScheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make(map[*refreshTask]struct{})
	for _, t := range s.inflight {
		tasks[t] = struct{}{}
	}
	return len(tasks)
}

func (s *RefreshScheduler) resolveCurrencies(currencies []string) ([]string, error) {
	if len(currencies) == 0 {
		return s.store.Currencies(), nil
	}

	seen := make(map[string]struct{}, len(currencies))
	codes := make([]string, 0, len(currencies))
	for _, raw := range currencies {
		code := entity.NormalizeCurrency(raw)
		if !entity.IsCurrencyCode(code) {
			return nil, NewValidationError("currencies", "invalid currency code %q", raw)
		}
		if !s.store.IsRegistered(code) {
			return nil, NewValidationError("currencies", "currency %s is not supported", code)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func (s *RefreshScheduler) newTask(ctx context.Context, codes []string, force bool, now time.Time) *refreshTask {
	return &refreshTask{
		id:         uuid.NewString(),
		source:     triggerSource(ctx),
		currencies: codes,
		force:      force,
		startedAt:  now,
		done:       make(chan struct{}),
	}
}

func (s *RefreshScheduler) start(task *refreshTask) {
	metrics.RefreshTasksInFlight.Inc()
	logger.Info().
		Str("task_id", task.id).
		Str("source", task.source).
		Strs("currencies", task.currencies).
		Bool("force", task.force).
		Msg("Starting rate refresh task")

	// Зависшая задача снимается по таймеру, ожидающие получают failed
	timer := time.AfterFunc(s.cfg.MaxTaskDuration, func() { s.expire(task) })
	go s.run(task, timer)
}

func (s *RefreshScheduler) run(task *refreshTask, timer *time.Timer) {
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MaxTaskDuration)
	defer cancel()

	res, fetchErr := s.provider.Fetch(ctx, task.currencies)
	if fetchErr == nil && res == nil {
		fetchErr = &provider.FetchError{Provider: s.provider.Name(), Err: errors.New("empty result")}
	}
	fetchedAt := s.now()

	outcomes := make(map[string]entity.CurrencyRefresh, len(task.currencies))
	var applied []entity.RateRecord
	for _, code := range task.currencies {
		o, rec := s.applyQuote(task, code, res, fetchErr, fetchedAt)
		if rec != nil {
			applied = append(applied, *rec)
		}
		outcomes[code] = o
		metrics.RecordRateRefresh(code, string(o.Status))
	}
	s.recordFailures(outcomes, fetchedAt)

	// После истечения задачи результат все равно попадает в хранилище,
	// newest-wins не даст ему перекрыть более свежий курс
	if !s.finish(task, outcomes) {
		logger.Warn().
			Str("task_id", task.id).
			Int("applied", len(applied)).
			Msg("Refresh task finished after expiry, late results offered to store")
	}

	s.afterTask(task, outcomes, applied, fetchErr, fetchedAt)
}

func (s *RefreshScheduler) applyQuote(
	task *refreshTask,
	code string,
	res *provider.FetchResult,
	fetchErr error,
	fetchedAt time.Time,
) (entity.CurrencyRefresh, *entity.RateRecord) {
	o := entity.CurrencyRefresh{TaskID: task.id, Status: entity.RefreshStatusFailed}

	if fetchErr != nil {
		o.Error = fetchErr.Error()
		s.logServeStale(code, fetchErr)
		return o, nil
	}

	quote, ok := res.Quotes[code]
	if !ok {
		reason := provider.ErrMissingRate
		if ferr := res.Failures[code]; ferr != nil {
			reason = ferr
		}
		o.Error = reason.Error()
		s.logServeStale(code, reason)
		return o, nil
	}

	rec := entity.NewRateRecord(code, quote.Rate, quote.Source, fetchedAt, s.cfg.TTL)
	put, err := s.store.Put(rec)
	switch {
	case err != nil:
		o.Error = err.Error()
		return o, nil
	case put == repository.PutApplied:
		o.Status = entity.RefreshStatusUpdated
		rec.IsActive = true
		return o, &rec
	default:
		o.Status = entity.RefreshStatusSuperseded
		return o, nil
	}
}

func (s *RefreshScheduler) logServeStale(code string, reason error) {
	event := logger.Warn().Str("currency", code).Err(reason)
	if rec, ok := s.store.Get(code); ok {
		event.Time("active_fetched_at", rec.FetchedAt).Msg("Rate refresh failed, serving previous rate")
		return
	}
	event.Msg("Rate refresh failed, no cached rate available")
}

func (s *RefreshScheduler) recordFailures(outcomes map[string]entity.CurrencyRefresh, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for code, o := range outcomes {
		if o.Status == entity.RefreshStatusFailed {
			s.lastFailure[code] = at
		} else {
			delete(s.lastFailure, code)
		}
	}
}

// finish завершает задачу ровно один раз: снимает ее из реестра и будит ожидающих
func (s *RefreshScheduler) finish(task *refreshTask, outcomes map[string]entity.CurrencyRefresh) bool {
	finished := false
	task.once.Do(func() {
		task.outcomes = outcomes

		s.mu.Lock()
		for _, code := range task.currencies {
			if s.inflight[code] == task {
				delete(s.inflight, code)
			}
		}
		s.mu.Unlock()

		metrics.RefreshTasksInFlight.Dec()
		close(task.done)
		finished = true
	})
	return finished
}

func (s *RefreshScheduler) expire(task *refreshTask) {
	outcomes := make(map[string]entity.CurrencyRefresh, len(task.currencies))
	for _, code := range task.currencies {
		outcomes[code] = entity.CurrencyRefresh{
			Status: entity.RefreshStatusFailed,
			TaskID: task.id,
			Error:  "refresh task exceeded max duration",
		}
	}

	if s.finish(task, outcomes) {
		metrics.RefreshTasksExpired.Inc()
		s.recordFailures(outcomes, s.now())
		logger.Warn().
			Str("task_id", task.id).
			Strs("currencies", task.currencies).
			Dur("max_duration", s.cfg.MaxTaskDuration).
			Msg("Refresh task expired, releasing waiters")
	}
}

// afterTask - журнал, снимок в Redis и события в Kafka. Ошибки только логируются.
func (s *RefreshScheduler) afterTask(
	task *refreshTask,
	outcomes map[string]entity.CurrencyRefresh,
	applied []entity.RateRecord,
	fetchErr error,
	fetchedAt time.Time,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var updated []string
	failures := make(map[string]string)
	for _, code := range task.currencies {
		o := outcomes[code]
		switch o.Status {
		case entity.RefreshStatusUpdated, entity.RefreshStatusSuperseded:
			updated = append(updated, code)
		case entity.RefreshStatusFailed:
			failures[code] = o.Error
		}
	}

	logEvent := logger.Info()
	if fetchErr != nil {
		logEvent = logger.Error().Err(fetchErr)
	}
	logEvent.
		Str("task_id", task.id).
		Str("source", task.source).
		Int("updated", len(applied)).
		Int("failed", len(failures)).
		Dur("duration", fetchedAt.Sub(task.startedAt)).
		Msg("Rate refresh task completed")

	if s.updateLogs != nil {
		entry := &entity.RateUpdateLog{
			TaskID:            task.id,
			UpdateSource:      task.source,
			Provider:          s.provider.Name(),
			CurrenciesUpdated: strings.Join(updated, ","),
			SuccessCount:      len(updated),
			ErrorCount:        len(failures),
			UpdateDurationMs:  fetchedAt.Sub(task.startedAt).Milliseconds(),
		}
		if len(failures) > 0 {
			details, _ := json.Marshal(failures)
			entry.ErrorDetails = string(details)
		}
		if err := s.updateLogs.Create(ctx, entry); err != nil {
			logger.Warn().Err(err).Str("task_id", task.id).Msg("Failed to write rate update log")
		}
	}

	if len(applied) == 0 {
		return
	}

	if s.snapshots != nil {
		if err := s.snapshots.SaveAll(ctx, applied); err != nil {
			logger.Warn().Err(err).Str("task_id", task.id).Msg("Failed to save rate snapshot to redis")
		}
	}

	if s.publisher != nil {
		for _, rec := range applied {
			s.publishRateEvent(ctx, rec)
		}
	}
}

func (s *RefreshScheduler) publishRateEvent(ctx context.Context, rec entity.RateRecord) {
	publishRateEvent(ctx, s.publisher, s.cfg.BaseCurrency, rec)
}

func publishRateEvent(ctx context.Context, publisher EventPublisher, base string, rec entity.RateRecord) {
	data, err := json.Marshal(entity.RateEvent{
		EventType:    entity.EventTypeRateUpdatedKafka,
		CurrencyCode: rec.CurrencyCode,
		BaseCurrency: base,
		RateToBase:   rec.RateToBase,
		Source:       rec.Source,
		FetchedAt:    rec.FetchedAt,
		Timestamp:    time.Now(),
	})
	if err != nil {
		logger.Error().Err(err).Str("currency", rec.CurrencyCode).Msg("Failed to marshal rate event")
		return
	}
	if err := publisher.PublishMessage(ctx, rec.CurrencyCode, data); err != nil {
		logger.Warn().Err(err).Str("currency", rec.CurrencyCode).Msg("Failed to publish rate event")
	}
}

// ===== Асинхронные запросы (POST /update, Kafka) =====

// Submit принимает запрос на обновление и сразу возвращает задание со статусом pending
func (s *RefreshScheduler) Submit(source string, currencies []string, force bool) (*entity.RefreshJob, error) {
	codes, err := s.resolveCurrencies(currencies)
	if err != nil {
		return nil, err
	}

	job := &entity.RefreshJob{
		ID:         source + "-" + uuid.NewString(),
		Source:     source,
		Status:     entity.RefreshJobPending,
		Currencies: codes,
		Force:      force,
		CreatedAt:  s.now(),
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = job
	snapshot := *job
	s.jobsMu.Unlock()

	go func() {
		ctx := WithTriggerSource(context.Background(), source)
		res, err := s.TriggerRefresh(ctx, codes, force)
		completedAt := s.now()

		s.jobsMu.Lock()
		defer s.jobsMu.Unlock()
		job.Result = res
		job.CompletedAt = &completedAt
		job.Status = entity.RefreshJobCompleted
		if err != nil {
			job.Status = entity.RefreshJobFailed
			job.Error = err.Error()
		}
	}()

	return &snapshot, nil
}

// Job возвращает копию задания
func (s *RefreshScheduler) Job(id string) (*entity.RefreshJob, bool) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// SweepJobs удаляет завершенные задания старше JobRetention
func (s *RefreshScheduler) SweepJobs(now time.Time) int {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.CompletedAt != nil && now.Sub(*job.CompletedAt) > s.cfg.JobRetention {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// IsFetchError - ошибка провайдера целиком, а не по валюте
func IsFetchError(err error) bool {
	var fe *provider.FetchError
	return errors.As(err, &fe)
}
