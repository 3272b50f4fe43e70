package repository

import (
	"context"
	"fmt"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/pkg/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// updateLogRepository реализует UpdateLogRepository через GORM
type updateLogRepository struct {
	db *gorm.DB
}

// NewUpdateLogRepository создает репозиторий журнала обновлений
func NewUpdateLogRepository(db *gorm.DB) UpdateLogRepository {
	return &updateLogRepository{db: db}
}

// Create сохраняет запись об одном обновлении курсов
func (r *updateLogRepository) Create(ctx context.Context, log *entity.RateUpdateLog) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpInsert, "rate_update_logs")
	defer timer.ObserveDuration()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpInsert)
		return fmt.Errorf("failed to create rate update log: %w", err)
	}
	return nil
}

// GetRecent возвращает последние записи журнала
func (r *updateLogRepository) GetRecent(ctx context.Context, limit int) ([]entity.RateUpdateLog, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, "rate_update_logs")
	defer timer.ObserveDuration()

	var logs []entity.RateUpdateLog
	result := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs)

	if result.Error != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to get rate update logs: %w", result.Error)
	}
	return logs, nil
}
