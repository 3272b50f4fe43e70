package repository

import (
	"iter"
	"sort"
	"sync"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
)

type historySeries struct {
	mu      sync.RWMutex
	entries []entity.RateRecord // отсортированы по fetched_at
}

// HistoryLog - журнал активаций курсов, только добавление.
// Записи - независимые копии, уже сохраненная запись не меняется.
type HistoryLog struct {
	mu     sync.RWMutex
	series map[string]*historySeries
}

func NewHistoryLog() *HistoryLog {
	return &HistoryLog{series: make(map[string]*historySeries)}
}

func (h *HistoryLog) get(code string, create bool) *historySeries {
	h.mu.RLock()
	s := h.series[code]
	h.mu.RUnlock()
	if s != nil || !create {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s = h.series[code]; s == nil {
		s = &historySeries{}
		h.series[code] = s
	}
	return s
}

// Append добавляет копию записи. Обычно записи приходят по возрастанию fetched_at,
// запоздавшая запись вставляется на свое место.
func (h *HistoryLog) Append(record entity.RateRecord) {
	record.IsActive = false
	s := h.get(record.CurrencyCode, true)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	if n == 0 || !record.FetchedAt.Before(s.entries[n-1].FetchedAt) {
		s.entries = append(s.entries, record)
		return
	}

	i := sort.Search(n, func(i int) bool {
		return s.entries[i].FetchedAt.After(record.FetchedAt)
	})
	s.entries = append(s.entries, entity.RateRecord{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = record
}

// Query возвращает записи валюты с fetched_at в [start, end] по неубыванию fetched_at.
// Окно копируется в момент начала обхода, повторный обход читает журнал заново.
func (h *HistoryLog) Query(code string, start, end time.Time) iter.Seq[entity.RateRecord] {
	code = entity.NormalizeCurrency(code)
	return func(yield func(entity.RateRecord) bool) {
		s := h.get(code, false)
		if s == nil || end.Before(start) {
			return
		}

		s.mu.RLock()
		lo := sort.Search(len(s.entries), func(i int) bool {
			return !s.entries[i].FetchedAt.Before(start)
		})
		hi := sort.Search(len(s.entries), func(i int) bool {
			return s.entries[i].FetchedAt.After(end)
		})
		window := make([]entity.RateRecord, hi-lo)
		copy(window, s.entries[lo:hi])
		s.mu.RUnlock()

		for _, rec := range window {
			if !yield(rec) {
				return
			}
		}
	}
}

// Len - количество записей по валюте
func (h *HistoryLog) Len(code string) int {
	s := h.get(entity.NormalizeCurrency(code), false)
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Prune удаляет записи с fetched_at < before и возвращает их количество
func (h *HistoryLog) Prune(before time.Time) int {
	h.mu.RLock()
	all := make([]*historySeries, 0, len(h.series))
	for _, s := range h.series {
		all = append(all, s)
	}
	h.mu.RUnlock()

	removed := 0
	for _, s := range all {
		s.mu.Lock()
		i := sort.Search(len(s.entries), func(i int) bool {
			return !s.entries[i].FetchedAt.Before(before)
		})
		if i > 0 {
			kept := make([]entity.RateRecord, len(s.entries)-i)
			copy(kept, s.entries[i:])
			s.entries = kept
			removed += i
		}
		s.mu.Unlock()
	}
	return removed
}
