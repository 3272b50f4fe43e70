package service

import (
	"context"
	"net/http"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"

	"github.com/shopspring/decimal"
)

// EventPublisher - Kafka producer
type EventPublisher interface {
	PublishMessage(ctx context.Context, key string, value []byte) error
}

type RefreshSchedulerInterface interface {
	TriggerRefresh(ctx context.Context, currencies []string, force bool) (*entity.RefreshResult, error)
	RefreshStale(ctx context.Context) (*entity.RefreshResult, error)
	Submit(source string, currencies []string, force bool) (*entity.RefreshJob, error)
	Job(id string) (*entity.RefreshJob, bool)
	SweepJobs(now time.Time) int
	InFlight() int
}

type RateServiceInterface interface {
	GetCurrent(currency string) (*entity.RateResponse, error)
	GetAll() *entity.AllRatesResponse
	Calculate(req *entity.CalculateRequest) (*entity.CalculationResult, error)
	GetHistory(currency string, days int) (*entity.HistoryResponse, error)
	Compare(base string, targets []string, amount decimal.Decimal) (*entity.CompareResponse, error)
	RatesHealth() *entity.RatesHealth
	PruneHistory(now time.Time) int
}

type WebhookReconcilerInterface interface {
	Handle(ctx context.Context, provider string, headers http.Header, body []byte) (*entity.WebhookEvent, error)
	Lookup(ctx context.Context, provider, eventID string) (*entity.WebhookEvent, error)
	Sweep(ctx context.Context, now time.Time) int
}

type TransactionServiceInterface interface {
	Create(ctx context.Context, req *entity.CreateTransactionRequest, createdBy string) (*entity.Transaction, error)
	Get(ctx context.Context, id string) (*entity.Transaction, error)
}

// SignatureVerifier проверяет подпись провайдера над сырым телом запроса
type SignatureVerifier interface {
	Verify(headers http.Header, body []byte) error
}
