package lottery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

// Ключи коллекций в хранилище.
const (
	keyUsers     = "users"
	keyLotteries = "lotteries"
	keyEntries   = "entries"
	keyAdCredits = "ad-credit-balances"
	keyHistory   = "lottery-history"
)

// Load читает все коллекции из хранилища.
// Отсутствующее, нечитаемое или повреждённое значение заменяется пустой коллекцией.
func (s *Store) Load(ctx context.Context) {
	var (
		users     []*User
		lotteries []*Lottery
		entries   []*Entry
		balances  map[string]*AdCreditBalance
		history   []Lottery
	)
	if !s.load(ctx, keyUsers, &users) {
		users = nil
	}
	if !s.load(ctx, keyLotteries, &lotteries) {
		lotteries = nil
	}
	if !s.load(ctx, keyEntries, &entries) {
		entries = nil
	}
	if !s.load(ctx, keyAdCredits, &balances) {
		balances = nil
	}
	if !s.load(ctx, keyHistory, &history) {
		history = nil
	}

	s.reset(users, lotteries, entries, balances, history)

	log.WithFields(log.Fields{
		"users":     len(s.users),
		"lotteries": len(s.lotteries),
		"entries":   len(s.entries),
		"history":   len(s.history),
	}).Info("Состояние лотереи загружено")
}

func (s *Store) load(ctx context.Context, key string, dst any) bool {
	logger := log.WithField("key", key)

	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		logger.WithError(err).Warn("Не удалось прочитать ключ, используем значение по умолчанию")
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.WithError(err).Warn("Повреждённое значение, используем значение по умолчанию")
		return false
	}
	return true
}

func (s *Store) marshal(key string) ([]byte, error) {
	switch key {
	case keyUsers:
		return json.Marshal(s.users)
	case keyLotteries:
		return json.Marshal(s.lotteries)
	case keyEntries:
		return json.Marshal(s.entries)
	case keyAdCredits:
		return json.Marshal(s.balances)
	case keyHistory:
		return json.Marshal(s.history)
	}
	return nil, fmt.Errorf("неизвестный ключ %q", key)
}

// save записывает коллекции после изменения. Ошибка не откатывает изменение
// в памяти: ключ остаётся в dirty до следующего Flush.
func (s *Store) save(ctx context.Context, keys ...string) {
	for _, key := range keys {
		s.dirty[key] = struct{}{}
	}
	_ = s.flushKeys(ctx, keys)
}

// Flush повторяет запись всех ключей, которые не удалось сохранить ранее.
func (s *Store) Flush(ctx context.Context) error {
	return s.flushKeys(ctx, s.Dirty())
}

// Dirty возвращает несохранённые ключи в алфавитном порядке.
func (s *Store) Dirty() []string {
	keys := make([]string, 0, len(s.dirty))
	for key := range s.dirty {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) flushKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	// запись не должна обрываться вместе с запросом пользователя
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()

	var errs []error
	for _, key := range keys {
		raw, err := s.marshal(key)
		if err == nil {
			err = s.kv.Set(ctx, key, raw)
		}
		if err != nil {
			log.WithError(err).WithField("key", key).Warn("Не удалось сохранить, повторим позже")
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		delete(s.dirty, key)
	}
	return errors.Join(errs...)
}
