package mocks

import (
	"context"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"

	"github.com/stretchr/testify/mock"
)

// MockRateSnapshotRepository мок для RateSnapshotRepository
type MockRateSnapshotRepository struct {
	mock.Mock
}

func (m *MockRateSnapshotRepository) SaveAll(ctx context.Context, records []entity.RateRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockRateSnapshotRepository) LoadAll(ctx context.Context, currencies []string) (map[string]entity.RateRecord, error) {
	args := m.Called(ctx, currencies)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]entity.RateRecord), args.Error(1)
}

func (m *MockRateSnapshotRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockDedupSet мок для DedupSet
type MockDedupSet struct {
	mock.Mock
}

func (m *MockDedupSet) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedupSet) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockDedupSet) Sweep(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockUpdateLogRepository мок для UpdateLogRepository
type MockUpdateLogRepository struct {
	mock.Mock
}

func (m *MockUpdateLogRepository) Create(ctx context.Context, log *entity.RateUpdateLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockUpdateLogRepository) GetRecent(ctx context.Context, limit int) ([]entity.RateUpdateLog, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.RateUpdateLog), args.Error(1)
}

// MockWebhookEventRepository мок для WebhookEventRepository
type MockWebhookEventRepository struct {
	mock.Mock
}

func (m *MockWebhookEventRepository) Create(ctx context.Context, event *entity.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockWebhookEventRepository) GetByEventID(ctx context.Context, provider, eventID string) (*entity.WebhookEvent, error) {
	args := m.Called(ctx, provider, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.WebhookEvent), args.Error(1)
}

// MockEventPublisher мок для Kafka producer
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishMessage(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}
