package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCurrency = errors.New("invalid currency code")
	ErrInvalidRate     = errors.New("rate must be positive")
	ErrInvalidExpiry   = errors.New("expires_at must be after fetched_at")
)

// RateRecord - курс валюты относительно базовой (BDT по умолчанию)
// Сколько единиц базовой валюты стоит одна единица CurrencyCode
type RateRecord struct {
	CurrencyCode string          `json:"currency_code"`
	RateToBase   decimal.Decimal `json:"rate_to_base"`
	Source       string          `json:"source"`
	FetchedAt    time.Time       `json:"fetched_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	IsActive     bool            `json:"is_active"`
}

// NewRateRecord создает запись с expires_at = fetched_at + ttl
func NewRateRecord(currency string, rate decimal.Decimal, source string, fetchedAt time.Time, ttl time.Duration) RateRecord {
	return RateRecord{
		CurrencyCode: NormalizeCurrency(currency),
		RateToBase:   rate,
		Source:       source,
		FetchedAt:    fetchedAt,
		ExpiresAt:    fetchedAt.Add(ttl),
	}
}

// Validate проверяет инварианты записи
func (r RateRecord) Validate() error {
	if !IsCurrencyCode(r.CurrencyCode) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, r.CurrencyCode)
	}
	if !r.RateToBase.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidRate, r.RateToBase.String())
	}
	if !r.ExpiresAt.After(r.FetchedAt) {
		return ErrInvalidExpiry
	}
	return nil
}

// IsStale - запись устарела, если now > expires_at
func (r RateRecord) IsStale(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// IsCurrencyCode проверяет формат ISO 4217: три заглавные латинские буквы
func IsCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ===== Обновление курсов =====

// RefreshStatus - результат обновления одной валюты
type RefreshStatus string

const (
	RefreshStatusUpdated    RefreshStatus = "updated"    // новая запись стала активной
	RefreshStatusSuperseded RefreshStatus = "superseded" // в хранилище уже более свежая запись
	RefreshStatusSkipped    RefreshStatus = "skipped"    // курс свежий, force не указан
	RefreshStatusFailed     RefreshStatus = "failed"     // провайдер не вернул курс, отдаем старый
)

type CurrencyRefresh struct {
	Status RefreshStatus `json:"status"`
	TaskID string        `json:"task_id,omitempty"`
	Joined bool          `json:"joined,omitempty"` // ожидали уже идущую задачу
	Error  string        `json:"error,omitempty"`
}

// RefreshResult - итог вызова TriggerRefresh по каждой валюте
type RefreshResult struct {
	Currencies map[string]CurrencyRefresh `json:"currencies"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
}

func (r *RefreshResult) Count(status RefreshStatus) int {
	n := 0
	for _, c := range r.Currencies {
		if c.Status == status {
			n++
		}
	}
	return n
}

type RefreshJobStatus string

const (
	RefreshJobPending   RefreshJobStatus = "pending"
	RefreshJobCompleted RefreshJobStatus = "completed"
	RefreshJobFailed    RefreshJobStatus = "failed"
)

// RefreshJob - асинхронный запрос на обновление (POST /update, Kafka)
type RefreshJob struct {
	ID          string           `json:"update_id"`
	Source      string           `json:"source"`
	Status      RefreshJobStatus `json:"status"`
	Currencies  []string         `json:"currencies"`
	Force       bool             `json:"force"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Result      *RefreshResult   `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// RateUpdateLog - журнал обновлений курсов в PostgreSQL
type RateUpdateLog struct {
	ID                uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TaskID            string    `json:"task_id" gorm:"type:varchar(64);not null"`
	UpdateSource      string    `json:"update_source" gorm:"type:varchar(50);not null"`
	Provider          string    `json:"provider" gorm:"type:varchar(50);not null"`
	CurrenciesUpdated string    `json:"currencies_updated" gorm:"type:text"` // через запятую
	SuccessCount      int       `json:"success_count" gorm:"not null"`
	ErrorCount        int       `json:"error_count" gorm:"not null"`
	ErrorDetails      string    `json:"error_details,omitempty" gorm:"type:text"`
	UpdateDurationMs  int64     `json:"update_duration_ms" gorm:"not null"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (RateUpdateLog) TableName() string {
	return "rate_update_logs"
}

// ===== Вебхуки =====

type WebhookStatus string

const (
	WebhookStatusReceived  WebhookStatus = "RECEIVED"
	WebhookStatusVerified  WebhookStatus = "VERIFIED"
	WebhookStatusApplied   WebhookStatus = "APPLIED"
	WebhookStatusRejected  WebhookStatus = "REJECTED"
	WebhookStatusDuplicate WebhookStatus = "DUPLICATE"
)

// IsTerminal - после терминального статуса событие не меняется
func (s WebhookStatus) IsTerminal() bool {
	return s == WebhookStatusApplied || s == WebhookStatusRejected || s == WebhookStatusDuplicate
}

// Outcome для APPLIED: изменение принято или перекрыто более свежим
const (
	OutcomeApplied    = "applied"
	OutcomeSuperseded = "superseded"
)

// WebhookEvent - входящее событие провайдера, хранится в webhook_events для аудита
type WebhookEvent struct {
	ID           uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	Provider     string        `json:"provider" gorm:"type:varchar(50);not null;index:idx_webhook_provider_event"`
	EventID      string        `json:"event_id" gorm:"type:varchar(128);index:idx_webhook_provider_event"`
	EventType    string        `json:"event_type" gorm:"type:varchar(64)"`
	Payload      string        `json:"-" gorm:"type:text"`
	Signature    string        `json:"-" gorm:"type:varchar(512)"`
	OccurredAt   *time.Time    `json:"occurred_at,omitempty"`
	ReceivedAt   time.Time     `json:"received_at" gorm:"not null"`
	Status       WebhookStatus `json:"status" gorm:"type:varchar(20);not null"`
	Outcome      string        `json:"outcome,omitempty" gorm:"type:varchar(20)"`
	RejectReason string        `json:"reject_reason,omitempty" gorm:"type:text"`
	RetryLater   bool          `json:"retry_later" gorm:"not null"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// DedupKey - ключ в наборе защиты от повторов: provider:event_id
func (e *WebhookEvent) DedupKey() string {
	return e.Provider + ":" + e.EventID
}

// Типы событий, которые принимает reconciler
const (
	EventTypeRateUpdated      = "rate.updated"
	EventTypePaymentValidated = "payment.validated"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentCancelled = "payment.cancelled"
	EventTypePaymentRefunded  = "payment.refunded"
)

// ===== Транзакции =====

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionValidated TransactionStatus = "VALIDATED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionCancelled TransactionStatus = "CANCELLED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:   {TransactionValidated, TransactionFailed, TransactionCancelled},
	TransactionValidated: {TransactionRefunded},
}

// CanTransitionTo проверяет допустимость перехода статуса
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanReach - достижим ли статус цепочкой допустимых переходов (PENDING -> VALIDATED -> REFUNDED)
func (s TransactionStatus) CanReach(target TransactionStatus) bool {
	for _, next := range transactionTransitions[s] {
		if next == target || next.CanReach(target) {
			return true
		}
	}
	return false
}

// TransactionStatusForEvent сопоставляет тип события целевому статусу
func TransactionStatusForEvent(eventType string) (TransactionStatus, bool) {
	switch eventType {
	case EventTypePaymentValidated:
		return TransactionValidated, true
	case EventTypePaymentFailed:
		return TransactionFailed, true
	case EventTypePaymentCancelled:
		return TransactionCancelled, true
	case EventTypePaymentRefunded:
		return TransactionRefunded, true
	}
	return "", false
}

// Transaction - платеж, статус которого подтверждают вебхуки провайдера
type Transaction struct {
	ID          string            `json:"transaction_id"`
	Provider    string            `json:"provider"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	Status      TransactionStatus `json:"status"`
	StatusAt    time.Time         `json:"status_at,omitzero"` // время последнего примененного события провайдера
	LastEventID string            `json:"last_event_id,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ===== Kafka события =====

const (
	EventTypeRateUpdatedKafka       = "RATE_UPDATED"
	EventTypeTransactionStatusKafka = "TRANSACTION_STATUS_CHANGED"
)

// RateEvent публикуется в rate_events при смене активного курса
type RateEvent struct {
	EventType    string          `json:"event_type"`
	CurrencyCode string          `json:"currency_code"`
	BaseCurrency string          `json:"base_currency"`
	RateToBase   decimal.Decimal `json:"rate_to_base"`
	Source       string          `json:"source"`
	FetchedAt    time.Time       `json:"fetched_at"`
	Timestamp    time.Time       `json:"timestamp"`
}

// TransactionEvent публикуется при применении платежного вебхука
type TransactionEvent struct {
	EventType     string            `json:"event_type"`
	TransactionID string            `json:"transaction_id"`
	Provider      string            `json:"provider"`
	Status        TransactionStatus `json:"status"`
	EventID       string            `json:"event_id"`
	Timestamp     time.Time         `json:"timestamp"`
}

// RefreshRequestEvent - запрос на обновление курсов из топика rate_refresh_requests
type RefreshRequestEvent struct {
	Currencies  []string `json:"currencies"`
	Force       bool     `json:"force"`
	RequestedBy string   `json:"requested_by"`
}

const RedisKeyPrefixRate = "rates:" // rates:USD, rates:EUR

func GetRedisKeyForRate(currency string) string {
	return RedisKeyPrefixRate + currency
}
