package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LuisEduardoPedra/checkoutPix/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "checkout:session:"

// Connect aceita tanto uma URL redis:// quanto host:porta.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisSnapshotStore compartilha a última visão das sessões entre réplicas do BFF.
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap domain.SessionSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("serializar snapshot: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+snap.SessionID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("salvar snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

// Get devolve nil, nil quando a sessão não existe ou expirou.
func (s *RedisSnapshotStore) Get(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	raw, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ler snapshot %s: %w", sessionID, err)
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decodificar snapshot %s: %w", sessionID, err)
	}
	return &snap, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, keyPrefix+sessionID).Err()
}

// Ping verifica a conexão; usado pelo health check.
func (s *RedisSnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
