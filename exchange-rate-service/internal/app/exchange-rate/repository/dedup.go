package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"fxgate/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const dedupShards = 32

type dedupShard struct {
	mu   sync.Mutex
	keys map[string]time.Time // ключ -> момент истечения
}

// MemoryDedupSet - набор ключей provider:event_id в памяти процесса.
// Разбит на шарды, чтобы разные события не конкурировали за одну блокировку.
type MemoryDedupSet struct {
	shards [dedupShards]dedupShard
	now    func() time.Time
}

func NewMemoryDedupSet() *MemoryDedupSet {
	d := &MemoryDedupSet{now: time.Now}
	for i := range d.shards {
		d.shards[i].keys = make(map[string]time.Time)
	}
	return d
}

func (d *MemoryDedupSet) shard(key string) *dedupShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &d.shards[h.Sum32()%dedupShards]
}

// Claim атомарно занимает ключ на ttl. false - ключ уже занят.
func (d *MemoryDedupSet) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	sh := d.shard(key)
	now := d.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if exp, ok := sh.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	sh.keys[key] = now.Add(ttl)
	return true, nil
}

// Release освобождает ключ, чтобы повтор от провайдера был обработан заново
func (d *MemoryDedupSet) Release(_ context.Context, key string) error {
	sh := d.shard(key)
	sh.mu.Lock()
	delete(sh.keys, key)
	sh.mu.Unlock()
	return nil
}

// Sweep удаляет истекшие ключи, возвращает их количество
func (d *MemoryDedupSet) Sweep(_ context.Context) (int, error) {
	now := d.now()
	removed := 0
	for i := range d.shards {
		sh := &d.shards[i]
		sh.mu.Lock()
		for key, exp := range sh.keys {
			if !now.Before(exp) {
				delete(sh.keys, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// RedisDedupSet - общий для всех реплик набор на SETNX с TTL
type RedisDedupSet struct {
	client *redis.Client
	prefix string
}

func NewRedisDedupSet(client *redis.Client) *RedisDedupSet {
	return &RedisDedupSet{client: client, prefix: "webhook:dedup:"}
}

func (d *RedisDedupSet) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpSetNX)
	defer timer.ObserveDuration()

	ok, err := d.client.SetNX(ctx, d.prefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		metrics.RecordRedisError(serviceName, metrics.RedisOpSetNX)
		return false, fmt.Errorf("failed to claim dedup key: %w", err)
	}
	return ok, nil
}

func (d *RedisDedupSet) Release(ctx context.Context, key string) error {
	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpDel)
	defer timer.ObserveDuration()

	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		metrics.RecordRedisError(serviceName, metrics.RedisOpDel)
		return fmt.Errorf("failed to release dedup key: %w", err)
	}
	return nil
}

// Sweep - Redis сам удаляет ключи по TTL
func (d *RedisDedupSet) Sweep(_ context.Context) (int, error) {
	return 0, nil
}
