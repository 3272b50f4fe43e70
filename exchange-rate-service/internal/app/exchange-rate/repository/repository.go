package repository

import (
	"context"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
)

// serviceName - метка service в метриках Redis и PostgreSQL
const serviceName = "exchange-rate-service"

// RateSnapshotRepository интерфейс снимка курсов в Redis
type RateSnapshotRepository interface {
	// SaveAll сохраняет активные курсы батчем
	SaveAll(ctx context.Context, records []entity.RateRecord) error

	// LoadAll читает сохраненные курсы указанных валют
	LoadAll(ctx context.Context, currencies []string) (map[string]entity.RateRecord, error)

	// Ping проверяет доступность Redis
	Ping(ctx context.Context) error
}

// DedupSet интерфейс набора обработанных вебхуков
type DedupSet interface {
	// Claim атомарно занимает ключ на ttl, false если ключ уже занят
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release освобождает ключ
	Release(ctx context.Context, key string) error

	// Sweep удаляет истекшие ключи
	Sweep(ctx context.Context) (int, error)
}

// UpdateLogRepository интерфейс журнала обновлений курсов в PostgreSQL
type UpdateLogRepository interface {
	Create(ctx context.Context, log *entity.RateUpdateLog) error
	GetRecent(ctx context.Context, limit int) ([]entity.RateUpdateLog, error)
}

// WebhookEventRepository интерфейс аудита вебхуков в PostgreSQL
type WebhookEventRepository interface {
	Create(ctx context.Context, event *entity.WebhookEvent) error
	GetByEventID(ctx context.Context, provider, eventID string) (*entity.WebhookEvent, error)
}
