// Package redisstore — хранилище состояния лотереи в Redis.
// Каждая коллекция лежит строкой под ключом <prefix><name>.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// NewClient создаёт клиента Redis и проверяет соединение через PING.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		MaxRetries:      5,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		PoolSize:        5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis недоступен (%s): %w", addr, err)
	}

	log.WithFields(log.Fields{"addr": addr, "db": db}).Info("Подключение к Redis установлено")
	return client, nil
}

// Client — команды Redis, которые нужны хранилищу. *redis.Client подходит.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// KVStore реализует storage.KV поверх Redis.
type KVStore struct {
	client Client
	prefix string
}

// NewKVStore создаёт хранилище с префиксом ключей.
func NewKVStore(client Client, prefix string) *KVStore {
	return &KVStore{client: client, prefix: prefix}
}

// Get читает значение; отсутствующий ключ (redis.Nil) — не ошибка.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения ключа %s: %w", key, err)
	}
	return value, true, nil
}

// Set записывает значение без TTL.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("ошибка записи ключа %s: %w", key, err)
	}
	return nil
}
