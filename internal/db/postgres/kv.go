package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	selectValueSQL = `SELECT value::text FROM kv_store WHERE key = $1`
	upsertValueSQL = `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`
)

// querier — часть соединения, которой пользуется KVStore. Её реализует *pgxpool.Conn.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// KVStore реализует storage.KV поверх таблицы kv_store.
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore создаёт хранилище поверх готового пула.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

// Get читает JSON-документ по ключу.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("не удалось получить соединение: %w", err)
	}
	defer conn.Release()

	return getValue(ctx, conn, key)
}

// Set сохраняет документ (upsert).
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("не удалось получить соединение: %w", err)
	}
	defer conn.Release()

	return setValue(ctx, conn, key, value)
}

func getValue(ctx context.Context, q querier, key string) ([]byte, bool, error) {
	var value string
	err := q.QueryRow(ctx, selectValueSQL, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения ключа %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func setValue(ctx context.Context, q querier, key string, value []byte) error {
	if _, err := q.Exec(ctx, upsertValueSQL, key, string(value)); err != nil {
		return fmt.Errorf("ошибка записи ключа %s: %w", key, err)
	}
	return nil
}
