package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/repository"
	"fxgate/pkg/logger"
	"fxgate/pkg/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const unknownProviderLabel = "unknown"

type WebhookReconcilerConfig struct {
	BaseCurrency string
	TTL          time.Duration // время жизни курса из rate.updated
	ReplayWindow time.Duration
	ClockSkew    time.Duration // насколько время события может опережать время получения
}

// WebhookReconciler применяет события провайдеров к RateStore и TransactionStore.
// Каждое событие проходит RECEIVED -> VERIFIED -> APPLIED ровно один раз,
// повтор получает DUPLICATE, неподписанное событие - REJECTED.
type WebhookReconciler struct {
	verifiers    map[string]SignatureVerifier
	dedup        repository.DedupSet
	rates        *repository.RateStore
	transactions *repository.TransactionStore
	events       repository.WebhookEventRepository
	publisher    EventPublisher
	validate     *validator.Validate
	cfg          WebhookReconcilerConfig
	now          func() time.Time

	logMu    sync.RWMutex
	eventLog map[string]entity.WebhookEvent // provider:event_id -> первое терминальное событие
}

// NewWebhookReconciler создает reconciler. events и publisher могут быть nil.
func NewWebhookReconciler(
	verifiers map[string]SignatureVerifier,
	dedup repository.DedupSet,
	rates *repository.RateStore,
	transactions *repository.TransactionStore,
	events repository.WebhookEventRepository,
	publisher EventPublisher,
	cfg WebhookReconcilerConfig,
) *WebhookReconciler {
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = 24 * time.Hour
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 5 * time.Minute
	}

	return &WebhookReconciler{
		verifiers:    verifiers,
		dedup:        dedup,
		rates:        rates,
		transactions: transactions,
		events:       events,
		publisher:    publisher,
		validate:     validator.New(),
		cfg:          cfg,
		now:          time.Now,
		eventLog:     make(map[string]entity.WebhookEvent),
	}
}

// Handle обрабатывает сырое тело вебхука.
// Возвращает событие в терминальном статусе; ошибка описывает причину REJECTED или DUPLICATE.
func (r *WebhookReconciler) Handle(ctx context.Context, provider string, headers http.Header, body []byte) (*entity.WebhookEvent, error) {
	start := r.now()
	event := &entity.WebhookEvent{
		ID:         uuid.New(),
		Provider:   strings.ToLower(strings.TrimSpace(provider)),
		Payload:    string(body),
		Signature:  headers.Get(SignatureHeader),
		ReceivedAt: start,
		Status:     entity.WebhookStatusReceived,
	}

	err := r.process(ctx, event, headers, body)
	r.complete(ctx, event, err, start)
	return event, err
}

func (r *WebhookReconciler) process(ctx context.Context, event *entity.WebhookEvent, headers http.Header, body []byte) error {
	verifier, ok := r.verifiers[event.Provider]
	if !ok {
		return r.reject(event, fmt.Errorf("%w: %s", ErrUnknownProvider, event.Provider))
	}

	envelope, err := r.parseEnvelope(body)
	if err != nil {
		return r.reject(event, err)
	}
	event.EventID = envelope.EventID
	event.EventType = envelope.EventType
	if !envelope.OccurredAt.IsZero() {
		occurredAt := envelope.OccurredAt
		event.OccurredAt = &occurredAt
	}

	// До проверки подписи событие не трогает набор дедупликации
	if err := verifier.Verify(headers, body); err != nil {
		logger.Warn().
			Str("provider", event.Provider).
			Str("event_id", event.EventID).
			Err(err).
			Msg("Webhook signature verification failed")
		return r.reject(event, err)
	}
	event.Status = entity.WebhookStatusVerified

	if !isSupportedEventType(envelope.EventType) {
		return r.reject(event, fmt.Errorf("%w: %s", ErrUnsupportedEvent, envelope.EventType))
	}
	if event.OccurredAt != nil && event.ReceivedAt.Sub(*event.OccurredAt) > r.cfg.ReplayWindow {
		return r.reject(event, fmt.Errorf("%w: occurred at %s", ErrEventExpired, event.OccurredAt.Format(time.RFC3339)))
	}
	if event.OccurredAt != nil && r.fromFuture(event, *event.OccurredAt) {
		return r.reject(event, fmt.Errorf("%w: occurred_at %s is ahead of receive time", ErrRejected, event.OccurredAt.Format(time.RFC3339)))
	}

	claimed, err := r.dedup.Claim(ctx, event.DedupKey(), r.cfg.ReplayWindow)
	if err != nil {
		logger.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to claim webhook dedup key")
		event.RetryLater = true
		return r.reject(event, fmt.Errorf("%w: %v", ErrRetryLater, err))
	}
	if !claimed {
		event.Status = entity.WebhookStatusDuplicate
		return ErrDuplicate
	}

	if envelope.EventType == entity.EventTypeRateUpdated {
		err = r.applyRateUpdate(ctx, event, envelope)
	} else {
		err = r.applyPaymentEvent(ctx, event, envelope)
	}
	return err
}

func (r *WebhookReconciler) parseEnvelope(body []byte) (*entity.WebhookEnvelope, error) {
	var envelope entity.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := r.validate.Struct(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &envelope, nil
}

// fromFuture - время события позже получения больше чем на допустимый сдвиг часов
func (r *WebhookReconciler) fromFuture(event *entity.WebhookEvent, at time.Time) bool {
	return at.After(event.ReceivedAt.Add(r.cfg.ClockSkew))
}

func isSupportedEventType(eventType string) bool {
	if eventType == entity.EventTypeRateUpdated {
		return true
	}
	_, ok := entity.TransactionStatusForEvent(eventType)
	return ok
}

func (r *WebhookReconciler) applyRateUpdate(ctx context.Context, event *entity.WebhookEvent, envelope *entity.WebhookEnvelope) error {
	var data entity.RateUpdateData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return r.reject(event, fmt.Errorf("%w: %v", ErrMalformedEvent, err))
	}
	if err := r.validate.Struct(&data); err != nil {
		return r.reject(event, fmt.Errorf("%w: %v", ErrMalformedEvent, err))
	}

	code := entity.NormalizeCurrency(data.CurrencyCode)
	if !r.rates.IsRegistered(code) {
		return r.reject(event, fmt.Errorf("%w: currency %s is not supported", ErrRejected, code))
	}

	fetchedAt := event.ReceivedAt
	switch {
	case data.FetchedAt != nil:
		fetchedAt = *data.FetchedAt
	case event.OccurredAt != nil:
		fetchedAt = *event.OccurredAt
	}
	if r.fromFuture(event, fetchedAt) {
		return r.reject(event, fmt.Errorf("%w: fetched_at %s is ahead of receive time", ErrRejected, fetchedAt.Format(time.RFC3339)))
	}
	source := data.Source
	if source == "" {
		source = "webhook:" + event.Provider
	}

	rec := entity.NewRateRecord(code, data.RateToBase, source, fetchedAt, r.cfg.TTL)
	put, err := r.rates.Put(rec)
	if err != nil {
		return r.reject(event, fmt.Errorf("%w: %v", ErrRejected, err))
	}

	event.Status = entity.WebhookStatusApplied
	if put == repository.PutSuperseded {
		event.Outcome = entity.OutcomeSuperseded
		return nil
	}
	event.Outcome = entity.OutcomeApplied

	if r.publisher != nil {
		rec.IsActive = true
		publishRateEvent(ctx, r.publisher, r.cfg.BaseCurrency, rec)
	}
	return nil
}

func (r *WebhookReconciler) applyPaymentEvent(ctx context.Context, event *entity.WebhookEvent, envelope *entity.WebhookEnvelope) error {
	var data entity.PaymentEventData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return r.reject(event, fmt.Errorf("%w: %v", ErrMalformedEvent, err))
	}
	if err := r.validate.Struct(&data); err != nil {
		return r.reject(event, fmt.Errorf("%w: %v", ErrMalformedEvent, err))
	}

	status, _ := entity.TransactionStatusForEvent(envelope.EventType)
	at := event.ReceivedAt
	if event.OccurredAt != nil {
		at = *event.OccurredAt
	}

	put, tx, err := r.transactions.Apply(data.TransactionID, status, at, event.EventID)
	switch {
	case errors.Is(err, repository.ErrTransactionNotFound):
		// Заглушку не создаем: повтор провайдера придет после регистрации транзакции
		return r.retryLater(ctx, event, fmt.Errorf("%w: transaction %s not found", ErrRetryLater, data.TransactionID))
	case errors.Is(err, repository.ErrTransitionNotReady):
		// Например refunded раньше validated: ждем промежуточное событие
		return r.retryLater(ctx, event, fmt.Errorf("%w: %s -> %s needs an intermediate status", ErrRetryLater, tx.Status, status))
	case errors.Is(err, repository.ErrInvalidTransition):
		return r.reject(event, fmt.Errorf("%w: %s -> %s not allowed", ErrRejected, tx.Status, status))
	case err != nil:
		return r.reject(event, fmt.Errorf("%w: %v", ErrRejected, err))
	}

	event.Status = entity.WebhookStatusApplied
	if put == repository.PutSuperseded {
		event.Outcome = entity.OutcomeSuperseded
		return nil
	}
	event.Outcome = entity.OutcomeApplied

	logger.Info().
		Str("transaction_id", tx.ID).
		Str("status", string(tx.Status)).
		Str("event_id", event.EventID).
		Msg("Transaction status updated from webhook")

	if r.publisher != nil {
		r.publishTransactionEvent(ctx, event, tx)
	}
	return nil
}

func (r *WebhookReconciler) publishTransactionEvent(ctx context.Context, event *entity.WebhookEvent, tx entity.Transaction) {
	data, err := json.Marshal(entity.TransactionEvent{
		EventType:     entity.EventTypeTransactionStatusKafka,
		TransactionID: tx.ID,
		Provider:      event.Provider,
		Status:        tx.Status,
		EventID:       event.EventID,
		Timestamp:     r.now(),
	})
	if err != nil {
		logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("Failed to marshal transaction event")
		return
	}
	if err := r.publisher.PublishMessage(ctx, tx.ID, data); err != nil {
		logger.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to publish transaction event")
	}
}

// retryLater снимает claim, чтобы повтор провайдера был обработан заново
func (r *WebhookReconciler) retryLater(ctx context.Context, event *entity.WebhookEvent, err error) error {
	if relErr := r.dedup.Release(ctx, event.DedupKey()); relErr != nil {
		logger.Warn().Err(relErr).Str("event_id", event.EventID).Msg("Failed to release webhook dedup key")
	}
	event.RetryLater = true
	return r.reject(event, err)
}

func (r *WebhookReconciler) reject(event *entity.WebhookEvent, err error) error {
	event.Status = entity.WebhookStatusRejected
	event.RejectReason = err.Error()
	return err
}

// complete фиксирует терминальный статус: журнал в памяти, аудит в БД, метрики
func (r *WebhookReconciler) complete(ctx context.Context, event *entity.WebhookEvent, err error, start time.Time) {
	processedAt := r.now()
	event.ProcessedAt = &processedAt

	if event.EventID != "" {
		key := event.DedupKey()
		r.logMu.Lock()
		existing, ok := r.eventLog[key]
		// Первое APPLIED событие не перекрывается повторами, отклоненные перезаписываются повтором провайдера
		if !ok || existing.Status != entity.WebhookStatusApplied {
			r.eventLog[key] = *event
		}
		r.logMu.Unlock()
	}

	if r.events != nil {
		if dbErr := r.events.Create(ctx, event); dbErr != nil {
			logger.Warn().Err(dbErr).Str("event_id", event.EventID).Msg("Failed to persist webhook event")
		}
	}

	label := event.Provider
	if _, ok := r.verifiers[label]; !ok {
		label = unknownProviderLabel
	}
	metrics.RecordWebhookEvent(label, string(event.Status), processedAt.Sub(start))

	logEvent := logger.Info()
	if event.Status == entity.WebhookStatusRejected {
		logEvent = logger.Warn().Err(err).Bool("retry_later", event.RetryLater)
	}
	logEvent.
		Str("provider", event.Provider).
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("status", string(event.Status)).
		Str("outcome", event.Outcome).
		Msg("Webhook event processed")
}

// Lookup ищет событие сначала в журнале в памяти, затем в БД
func (r *WebhookReconciler) Lookup(ctx context.Context, provider, eventID string) (*entity.WebhookEvent, error) {
	probe := entity.WebhookEvent{Provider: strings.ToLower(provider), EventID: eventID}

	r.logMu.RLock()
	event, ok := r.eventLog[probe.DedupKey()]
	r.logMu.RUnlock()
	if ok {
		return &event, nil
	}

	if r.events == nil {
		return nil, fmt.Errorf("%w: webhook event %s", ErrNotFound, eventID)
	}
	stored, err := r.events.GetByEventID(ctx, probe.Provider, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrWebhookEventNotFound) {
			return nil, fmt.Errorf("%w: webhook event %s", ErrNotFound, eventID)
		}
		return nil, err
	}
	return stored, nil
}

// Sweep удаляет из журнала и набора дедупликации записи старше окна повторов
func (r *WebhookReconciler) Sweep(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-r.cfg.ReplayWindow)

	r.logMu.Lock()
	removed := 0
	for key, event := range r.eventLog {
		if event.ReceivedAt.Before(cutoff) {
			delete(r.eventLog, key)
			removed++
		}
	}
	r.logMu.Unlock()

	swept, err := r.dedup.Sweep(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to sweep webhook dedup set")
	}
	return removed + swept
}
