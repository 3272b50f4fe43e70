package repository

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
)

// PutResult - чем закончилась запись в RateStore
type PutResult int

const (
	PutApplied    PutResult = iota // запись стала активной
	PutSuperseded                  // активная запись не старее, новая отброшена
)

func (r PutResult) String() string {
	if r == PutApplied {
		return "applied"
	}
	return "superseded"
}

// rateSlot хранит активный курс одной валюты.
// Читатели берут указатель атомарно, писатели сериализуются через mu.
type rateSlot struct {
	mu     sync.Mutex
	active atomic.Pointer[entity.RateRecord]
}

// RateStore - текущие курсы в памяти. Чтение никогда не ходит в сеть и не ждет писателей.
// Глобальный RWMutex защищает только карту слотов, запись курса блокирует лишь свою валюту.
type RateStore struct {
	mu      sync.RWMutex
	slots   map[string]*rateSlot
	order   []string
	history *HistoryLog
}

// NewRateStore создает хранилище, каждая новая активная запись копируется в history
func NewRateStore(history *HistoryLog) *RateStore {
	return &RateStore{
		slots:   make(map[string]*rateSlot),
		history: history,
	}
}

// Register добавляет валюты в порядке, в котором их вернет GetAll
func (s *RateStore) Register(codes ...string) {
	for _, code := range codes {
		s.slot(entity.NormalizeCurrency(code), true)
	}
}

// IsRegistered - валюта известна хранилищу (даже если курса еще нет)
func (s *RateStore) IsRegistered(code string) bool {
	return s.slot(entity.NormalizeCurrency(code), false) != nil
}

// Currencies возвращает валюты в порядке регистрации
func (s *RateStore) Currencies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, len(s.order))
	copy(result, s.order)
	return result
}

func (s *RateStore) slot(code string, create bool) *rateSlot {
	s.mu.RLock()
	sl := s.slots[code]
	s.mu.RUnlock()
	if sl != nil || !create {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl = s.slots[code]; sl == nil {
		sl = &rateSlot{}
		s.slots[code] = sl
		s.order = append(s.order, code)
	}
	return sl
}

// Get возвращает активный курс. Отсутствие курса - это false, а не ошибка.
func (s *RateStore) Get(code string) (entity.RateRecord, bool) {
	sl := s.slot(entity.NormalizeCurrency(code), false)
	if sl == nil {
		return entity.RateRecord{}, false
	}
	rec := sl.active.Load()
	if rec == nil {
		return entity.RateRecord{}, false
	}
	return *rec, true
}

// GetAll возвращает по одной активной записи на валюту в порядке регистрации
func (s *RateStore) GetAll() []entity.RateRecord {
	s.mu.RLock()
	slots := make([]*rateSlot, 0, len(s.order))
	for _, code := range s.order {
		slots = append(slots, s.slots[code])
	}
	s.mu.RUnlock()

	result := make([]entity.RateRecord, 0, len(slots))
	for _, sl := range slots {
		if rec := sl.active.Load(); rec != nil {
			result = append(result, *rec)
		}
	}
	return result
}

// Put - единственная точка изменения курса.
// Запись не новее активной (fetched_at <= active.fetched_at) отбрасывается,
// так что итоговый активный курс не зависит от порядка применения.
func (s *RateStore) Put(record entity.RateRecord) (PutResult, error) {
	record.CurrencyCode = entity.NormalizeCurrency(record.CurrencyCode)
	if err := record.Validate(); err != nil {
		return PutSuperseded, fmt.Errorf("failed to put rate: %w", err)
	}

	sl := s.slot(record.CurrencyCode, true)

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if current := sl.active.Load(); current != nil && !record.FetchedAt.After(current.FetchedAt) {
		return PutSuperseded, nil
	}

	record.IsActive = true
	if s.history != nil {
		s.history.Append(record)
	}
	sl.active.Store(&record)

	return PutApplied, nil
}

// IsStale - курса нет или now > expires_at
func (s *RateStore) IsStale(code string, now time.Time) bool {
	rec, ok := s.Get(code)
	if !ok {
		return true
	}
	return rec.IsStale(now)
}
