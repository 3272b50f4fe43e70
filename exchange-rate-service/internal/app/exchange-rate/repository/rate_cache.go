package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// rateSnapshotRepository хранит снимок активных курсов в Redis.
// Нужен для прогрева RateStore после рестарта, источником истины остается память процесса.
type rateSnapshotRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRateSnapshotRepository создает репозиторий снимков курсов
func NewRateSnapshotRepository(client *redis.Client, ttl time.Duration) RateSnapshotRepository {
	return &rateSnapshotRepository{
		client: client,
		ttl:    ttl,
	}
}

// SaveAll сохраняет несколько курсов батчем через Pipeline
func (r *rateSnapshotRepository) SaveAll(ctx context.Context, records []entity.RateRecord) error {
	if len(records) == 0 {
		return nil
	}

	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpSet)
	defer timer.ObserveDuration()

	pipe := r.client.Pipeline()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal rate for %s: %w", rec.CurrencyCode, err)
		}
		pipe.Set(ctx, entity.GetRedisKeyForRate(rec.CurrencyCode), data, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RecordRedisError(serviceName, metrics.RedisOpSet)
		return fmt.Errorf("failed to save rate snapshot: %w", err)
	}
	return nil
}

// LoadAll читает снимки указанных валют, отсутствующие пропускаются
func (r *rateSnapshotRepository) LoadAll(ctx context.Context, currencies []string) (map[string]entity.RateRecord, error) {
	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpGet)
	defer timer.ObserveDuration()

	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(currencies))
	for _, code := range currencies {
		cmds[code] = pipe.Get(ctx, entity.GetRedisKeyForRate(code))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		metrics.RecordRedisError(serviceName, metrics.RedisOpGet)
		return nil, fmt.Errorf("failed to load rate snapshot: %w", err)
	}

	result := make(map[string]entity.RateRecord, len(cmds))
	for code, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to get rate for %s: %w", code, err)
		}

		var rec entity.RateRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rate for %s: %w", code, err)
		}
		result[code] = rec
	}
	return result, nil
}

// Ping используется readiness-проверкой
func (r *rateSnapshotRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
