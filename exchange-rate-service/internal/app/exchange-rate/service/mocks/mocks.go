package mocks

import (
	"context"
	"net/http"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockRefreshScheduler мок для RefreshSchedulerInterface
type MockRefreshScheduler struct {
	mock.Mock
}

func (m *MockRefreshScheduler) TriggerRefresh(ctx context.Context, currencies []string, force bool) (*entity.RefreshResult, error) {
	args := m.Called(ctx, currencies, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RefreshResult), args.Error(1)
}

func (m *MockRefreshScheduler) RefreshStale(ctx context.Context) (*entity.RefreshResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RefreshResult), args.Error(1)
}

func (m *MockRefreshScheduler) Submit(source string, currencies []string, force bool) (*entity.RefreshJob, error) {
	args := m.Called(source, currencies, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RefreshJob), args.Error(1)
}

func (m *MockRefreshScheduler) Job(id string) (*entity.RefreshJob, bool) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*entity.RefreshJob), args.Bool(1)
}

func (m *MockRefreshScheduler) SweepJobs(now time.Time) int {
	args := m.Called(now)
	return args.Int(0)
}

func (m *MockRefreshScheduler) InFlight() int {
	args := m.Called()
	return args.Int(0)
}

// MockRateService мок для RateServiceInterface
type MockRateService struct {
	mock.Mock
}

func (m *MockRateService) GetCurrent(currency string) (*entity.RateResponse, error) {
	args := m.Called(currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RateResponse), args.Error(1)
}

func (m *MockRateService) GetAll() *entity.AllRatesResponse {
	args := m.Called()
	return args.Get(0).(*entity.AllRatesResponse)
}

func (m *MockRateService) Calculate(req *entity.CalculateRequest) (*entity.CalculationResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.CalculationResult), args.Error(1)
}

func (m *MockRateService) GetHistory(currency string, days int) (*entity.HistoryResponse, error) {
	args := m.Called(currency, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.HistoryResponse), args.Error(1)
}

func (m *MockRateService) Compare(base string, targets []string, amount decimal.Decimal) (*entity.CompareResponse, error) {
	args := m.Called(base, targets, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.CompareResponse), args.Error(1)
}

func (m *MockRateService) RatesHealth() *entity.RatesHealth {
	args := m.Called()
	return args.Get(0).(*entity.RatesHealth)
}

func (m *MockRateService) PruneHistory(now time.Time) int {
	args := m.Called(now)
	return args.Int(0)
}

// MockWebhookReconciler мок для WebhookReconcilerInterface
type MockWebhookReconciler struct {
	mock.Mock
}

func (m *MockWebhookReconciler) Handle(ctx context.Context, provider string, headers http.Header, body []byte) (*entity.WebhookEvent, error) {
	args := m.Called(ctx, provider, headers, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.WebhookEvent), args.Error(1)
}

func (m *MockWebhookReconciler) Lookup(ctx context.Context, provider, eventID string) (*entity.WebhookEvent, error) {
	args := m.Called(ctx, provider, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.WebhookEvent), args.Error(1)
}

func (m *MockWebhookReconciler) Sweep(ctx context.Context, now time.Time) int {
	args := m.Called(ctx, now)
	return args.Int(0)
}

// MockTransactionService мок для TransactionServiceInterface
type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) Create(ctx context.Context, req *entity.CreateTransactionRequest, createdBy string) (*entity.Transaction, error) {
	args := m.Called(ctx, req, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Transaction), args.Error(1)
}

func (m *MockTransactionService) Get(ctx context.Context, id string) (*entity.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Transaction), args.Error(1)
}
