package repository

import (
	"errors"
	"sync"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionExists   = errors.New("transaction already exists")
	ErrInvalidTransition   = errors.New("invalid transaction status transition")
	// Целевой статус достижим, но промежуточное событие еще не пришло
	ErrTransitionNotReady  = errors.New("intermediate transaction status not reached yet")
)

type txSlot struct {
	mu sync.Mutex
	tx entity.Transaction
}

// TransactionStore - статусы платежей, которые подтверждают вебхуки.
// Как и RateStore, сериализует изменения по ключу (transaction_id).
type TransactionStore struct {
	mu    sync.RWMutex
	slots map[string]*txSlot
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{slots: make(map[string]*txSlot)}
}

// Create регистрирует новую транзакцию в статусе PENDING.
// StatusAt остается нулевым: время регистрации по нашим часам не сравнивается с часами провайдера.
func (s *TransactionStore) Create(tx entity.Transaction) (entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[tx.ID]; ok {
		return entity.Transaction{}, ErrTransactionExists
	}
	tx.Status = entity.TransactionPending
	tx.StatusAt = time.Time{}
	tx.LastEventID = ""
	s.slots[tx.ID] = &txSlot{tx: tx}
	return tx, nil
}

func (s *TransactionStore) Get(id string) (entity.Transaction, bool) {
	s.mu.RLock()
	sl := s.slots[id]
	s.mu.RUnlock()
	if sl == nil {
		return entity.Transaction{}, false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.tx, true
}

// Apply применяет смену статуса из события.
// Событие старее последнего примененного события или повторяющее статус отбрасывается (PutSuperseded).
// Статус, достижимый только через промежуточный, возвращает ErrTransitionNotReady,
// недостижимый - ErrInvalidTransition.
func (s *TransactionStore) Apply(id string, status entity.TransactionStatus, at time.Time, eventID string) (PutResult, entity.Transaction, error) {
	s.mu.RLock()
	sl := s.slots[id]
	s.mu.RUnlock()
	if sl == nil {
		return PutSuperseded, entity.Transaction{}, ErrTransactionNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.tx.Status == status || (!sl.tx.StatusAt.IsZero() && !at.After(sl.tx.StatusAt)) {
		return PutSuperseded, sl.tx, nil
	}
	if !sl.tx.Status.CanTransitionTo(status) {
		if sl.tx.Status.CanReach(status) {
			return PutSuperseded, sl.tx, ErrTransitionNotReady
		}
		return PutSuperseded, sl.tx, ErrInvalidTransition
	}

	sl.tx.Status = status
	sl.tx.StatusAt = at
	sl.tx.LastEventID = eventID
	return PutApplied, sl.tx, nil
}
