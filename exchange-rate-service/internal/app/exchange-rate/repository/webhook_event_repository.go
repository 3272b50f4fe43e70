package repository

import (
	"context"
	"errors"
	"fmt"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/pkg/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrWebhookEventNotFound = errors.New("webhook event not found")

// webhookEventRepository реализует WebhookEventRepository через GORM
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository создает репозиторий аудита вебхуков
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// Create сохраняет событие в терминальном статусе
func (r *webhookEventRepository) Create(ctx context.Context, event *entity.WebhookEvent) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpInsert, "webhook_events")
	defer timer.ObserveDuration()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpInsert)
		return fmt.Errorf("failed to create webhook event: %w", err)
	}
	return nil
}

// GetByEventID возвращает последнюю запись по provider + event_id
func (r *webhookEventRepository) GetByEventID(ctx context.Context, provider, eventID string) (*entity.WebhookEvent, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, "webhook_events")
	defer timer.ObserveDuration()

	var event entity.WebhookEvent
	result := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Order("received_at DESC").
		First(&event)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrWebhookEventNotFound
		}
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to get webhook event: %w", result.Error)
	}
	return &event, nil
}
