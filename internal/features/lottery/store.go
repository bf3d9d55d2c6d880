// Package lottery — store.go содержит агрегат состояния лотереи:
// пользователей, лотереи, билеты, балансы кредитов и историю розыгрышей.
//
// Store не потокобезопасен: им владеет одна горутина Service,
// все изменения идут через неё по очереди.
package lottery

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/lottery-bot/internal/common"
	"serotonyl.ru/lottery-bot/internal/storage"
)

// HistoryLimit — сколько закрытых лотерей хранится в истории.
const HistoryLimit = 6

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Store — владелец всех коллекций.
type Store struct {
	kv          storage.KV
	now         func() time.Time
	rnd         *rand.Rand
	saveTimeout time.Duration

	users           []*User
	usersByID       map[string]*User
	usersByExternal map[string]*User
	usersByCode     map[string]*User

	lotteries     []*Lottery
	lotteriesByID map[string]*Lottery

	entries  []*Entry
	balances map[string]*AdCreditBalance
	history  []Lottery

	// ключи, которые не удалось записать в kv
	dirty map[string]struct{}
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRand задаёт генератор для суффиксов реферальных кодов.
func WithRand(rnd *rand.Rand) Option {
	return func(s *Store) { s.rnd = rnd }
}

// WithSaveTimeout ограничивает время одной записи в хранилище.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Store) { s.saveTimeout = d }
}

// NewStore создаёт пустой Store. Для загрузки сохранённого состояния вызовите Load.
func NewStore(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:          kv,
		now:         time.Now,
		saveTimeout: 5 * time.Second,
		dirty:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s.reset(nil, nil, nil, nil, nil)
	return s
}

// reset заменяет все коллекции и перестраивает индексы.
func (s *Store) reset(users []*User, lotteries []*Lottery, entries []*Entry, balances map[string]*AdCreditBalance, history []Lottery) {
	s.users = s.users[:0]
	s.usersByID = make(map[string]*User, len(users))
	s.usersByExternal = make(map[string]*User, len(users))
	s.usersByCode = make(map[string]*User, len(users))
	for _, u := range users {
		if u == nil || u.ID == "" {
			continue
		}
		s.addUser(u)
	}

	s.lotteries = s.lotteries[:0]
	s.lotteriesByID = make(map[string]*Lottery, len(lotteries))
	for _, l := range lotteries {
		if l == nil || l.ID == "" {
			continue
		}
		s.lotteries = append(s.lotteries, l)
		s.lotteriesByID[l.ID] = l
	}

	s.entries = s.entries[:0]
	for _, e := range entries {
		if e == nil {
			continue
		}
		s.entries = append(s.entries, e)
	}

	s.balances = make(map[string]*AdCreditBalance, len(balances))
	for userID, b := range balances {
		if b == nil {
			continue
		}
		b.UserID = userID
		s.balances[userID] = b
	}

	if len(history) > HistoryLimit {
		history = history[:HistoryLimit]
	}
	s.history = history
}

func (s *Store) addUser(u *User) {
	s.users = append(s.users, u)
	s.usersByID[u.ID] = u
	s.usersByExternal[u.ExternalID] = u
	s.usersByCode[u.ReferralCode] = u
}

// --- Пользователи ---

// ResolveOrCreateUser возвращает пользователя по внешнему идентификатору,
// создавая его при первом входе. Повторные вызовы возвращают ту же запись.
func (s *Store) ResolveOrCreateUser(ctx context.Context, externalID, displayName string) (User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return User{}, fmt.Errorf("пустой внешний идентификатор")
	}
	if u, ok := s.usersByExternal[externalID]; ok {
		return *u, nil
	}

	u := &User{
		ID:           uuid.NewString(),
		ExternalID:   externalID,
		DisplayName:  displayName,
		ReferralCode: s.newReferralCode(displayName),
		CreatedAt:    s.now(),
	}
	s.addUser(u)
	s.save(ctx, keyUsers)

	log.WithFields(log.Fields{
		"user_id":       u.ID,
		"external_id":   externalID,
		"referral_code": u.ReferralCode,
	}).Info("Новый участник лотереи")
	return *u, nil
}

// newReferralCode генерирует REF_<ИМЯ>_<6 символов>, пока не найдётся свободный.
func (s *Store) newReferralCode(displayName string) string {
	stem := codeStem(displayName)
	for {
		suffix := make([]byte, 6)
		for i := range suffix {
			suffix[i] = codeAlphabet[s.rnd.Intn(len(codeAlphabet))]
		}
		code := "REF_" + stem + "_" + string(suffix)
		if _, taken := s.usersByCode[code]; !taken {
			return code
		}
	}
}

// codeStem приводит имя к виду, пригодному для /start-ссылки Telegram:
// только A-Z, 0-9 и _, не длиннее 32 символов.
func codeStem(displayName string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(displayName) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	stem := b.String()
	if stem == "" {
		return "USER"
	}
	if len(stem) > 32 {
		stem = stem[:32]
	}
	return stem
}

// User возвращает пользователя по внутреннему id.
func (s *Store) User(userID string) (User, error) {
	u, ok := s.usersByID[userID]
	if !ok {
		return User{}, fmt.Errorf("пользователь %s: %w", userID, common.ErrNotFound)
	}
	return *u, nil
}

// UserByExternalID ищет пользователя по идентификатору провайдера.
func (s *Store) UserByExternalID(externalID string) (User, bool) {
	u, ok := s.usersByExternal[externalID]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// UserByReferralCode ищет владельца кода (точное совпадение).
func (s *Store) UserByReferralCode(code string) (User, bool) {
	u, ok := s.usersByCode[code]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// Users возвращает всех пользователей в порядке регистрации.
func (s *Store) Users() []User {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out
}

// --- Лотереи ---

// OpenLotteriesIfNone создаёт по одной открытой лотерее каждого типа,
// если в хранилище нет ни одной лотереи (даже закрытой).
// Возвращает true, если лотереи были созданы.
func (s *Store) OpenLotteriesIfNone(ctx context.Context) bool {
	if len(s.lotteries) > 0 {
		return false
	}

	now := s.now()
	for _, kind := range Kinds {
		l := &Lottery{
			ID:          fmt.Sprintf("%s_%d", kind, now.UnixMilli()),
			Kind:        kind,
			StartTime:   now,
			EndTime:     now.Add(kind.Window()),
			Status:      StatusOpen,
			WinnerSlots: kind.WinnerSlots(),
		}
		s.lotteries = append(s.lotteries, l)
		s.lotteriesByID[l.ID] = l
	}
	s.save(ctx, keyLotteries)

	log.WithField("count", len(Kinds)).Info("Созданы стартовые лотереи")
	return true
}

// Lottery возвращает лотерею по id.
func (s *Store) Lottery(lotteryID string) (Lottery, error) {
	l, ok := s.lotteriesByID[lotteryID]
	if !ok {
		return Lottery{}, fmt.Errorf("лотерея %s: %w", lotteryID, common.ErrNotFound)
	}
	return l.clone(), nil
}

// Lotteries возвращает все лотереи в порядке создания.
func (s *Store) Lotteries() []Lottery {
	out := make([]Lottery, 0, len(s.lotteries))
	for _, l := range s.lotteries {
		out = append(out, l.clone())
	}
	return out
}

// OpenLotteries возвращает открытые лотереи.
func (s *Store) OpenLotteries() []Lottery {
	var out []Lottery
	for _, l := range s.lotteries {
		if l.IsOpen() {
			out = append(out, l.clone())
		}
	}
	return out
}

// OpenLotteryByKind возвращает открытую лотерею заданного типа.
func (s *Store) OpenLotteryByKind(kind Kind) (Lottery, error) {
	for _, l := range s.lotteries {
		if l.Kind == kind && l.IsOpen() {
			return l.clone(), nil
		}
	}
	return Lottery{}, fmt.Errorf("открытая лотерея %s: %w", kind, common.ErrNotFound)
}

// --- Билеты ---

// RecordEntry добавляет билет. Открытость лотереи здесь не проверяется.
func (s *Store) RecordEntry(ctx context.Context, userID, lotteryID string, source Source) (Entry, error) {
	e, err := s.appendEntry(userID, lotteryID, source)
	if err != nil {
		return Entry{}, err
	}
	s.save(ctx, keyEntries)
	return *e, nil
}

func (s *Store) appendEntry(userID, lotteryID string, source Source) (*Entry, error) {
	if _, ok := s.usersByID[userID]; !ok {
		return nil, fmt.Errorf("пользователь %s: %w", userID, common.ErrNotFound)
	}
	if _, ok := s.lotteriesByID[lotteryID]; !ok {
		return nil, fmt.Errorf("лотерея %s: %w", lotteryID, common.ErrNotFound)
	}
	switch source {
	case SourcePayment, SourceAd, SourceReferral:
	default:
		return nil, fmt.Errorf("неизвестный источник билета %q", source)
	}

	e := &Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		LotteryID: lotteryID,
		Source:    source,
		CreatedAt: s.now(),
	}
	s.entries = append(s.entries, e)
	return e, nil
}

// EntriesForLottery возвращает билеты лотереи в порядке покупки.
func (s *Store) EntriesForLottery(lotteryID string) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if e.LotteryID == lotteryID {
			out = append(out, *e)
		}
	}
	return out
}

// EntriesForUser возвращает билеты пользователя в порядке покупки.
func (s *Store) EntriesForUser(userID string) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out
}

// DistinctParticipants — уникальные участники лотереи в порядке первого билета.
func (s *Store) DistinctParticipants(lotteryID string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range s.entries {
		if e.LotteryID != lotteryID {
			continue
		}
		if _, ok := seen[e.UserID]; ok {
			continue
		}
		seen[e.UserID] = struct{}{}
		out = append(out, e.UserID)
	}
	return out
}

func (s *Store) countEntries(userID, lotteryID string) int {
	n := 0
	for _, e := range s.entries {
		if e.UserID == userID && (lotteryID == "" || e.LotteryID == lotteryID) {
			n++
		}
	}
	return n
}

// --- История ---

// History возвращает закрытые лотереи, новые первыми.
func (s *Store) History() []Lottery {
	out := make([]Lottery, 0, len(s.history))
	for i := range s.history {
		out = append(out, s.history[i].clone())
	}
	return out
}

func (s *Store) pushHistory(l Lottery) {
	s.history = append([]Lottery{l}, s.history...)
	if len(s.history) > HistoryLimit {
		s.history = s.history[:HistoryLimit]
	}
}
