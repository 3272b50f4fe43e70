package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/repository"
	"fxgate/pkg/logger"
)

// TransactionService регистрирует платежи, статус которых затем подтверждают вебхуки
type TransactionService struct {
	store *repository.TransactionStore
	now   func() time.Time
}

func NewTransactionService(store *repository.TransactionStore) *TransactionService {
	return &TransactionService{store: store, now: time.Now}
}

func (s *TransactionService) Create(ctx context.Context, req *entity.CreateTransactionRequest, createdBy string) (*entity.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, NewValidationError("amount", "must be greater than 0")
	}
	currency := entity.NormalizeCurrency(req.Currency)
	if !entity.IsCurrencyCode(currency) {
		return nil, NewValidationError("currency", "invalid currency code %q", req.Currency)
	}

	now := s.now()
	tx, err := s.store.Create(entity.Transaction{
		ID:        strings.TrimSpace(req.TransactionID),
		Provider:  strings.ToLower(strings.TrimSpace(req.Provider)),
		Amount:    req.Amount,
		Currency:  currency,
		CreatedBy: createdBy,
		CreatedAt: now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrTransactionExists) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionExists, req.TransactionID)
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	logger.Info().
		Str("transaction_id", tx.ID).
		Str("provider", tx.Provider).
		Str("created_by", createdBy).
		Msg("Transaction registered")

	return &tx, nil
}

func (s *TransactionService) Get(_ context.Context, id string) (*entity.Transaction, error) {
	tx, ok := s.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	return &tx, nil
}
