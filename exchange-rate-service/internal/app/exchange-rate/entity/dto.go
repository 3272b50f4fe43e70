package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CalculateRequest - POST /calculate
type CalculateRequest struct {
	FromCurrency         string           `json:"from_currency" validate:"required,len=3,alpha"`
	ToCurrency           string           `json:"to_currency" validate:"omitempty,len=3,alpha"` // по умолчанию базовая валюта
	Amount               decimal.Decimal  `json:"amount"`
	ServiceFeePercentage *decimal.Decimal `json:"service_fee_percentage,omitempty"`
}

// CalculationResult - результат расчета, суммы округлены до 2 знаков
type CalculationResult struct {
	FromCurrency         string          `json:"from_currency"`
	ToCurrency           string          `json:"to_currency"`
	OriginalAmount       decimal.Decimal `json:"original_amount"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	ConvertedAmount      decimal.Decimal `json:"converted_amount"`
	ServiceFeePercentage decimal.Decimal `json:"service_fee_percentage"`
	ServiceFeeAmount     decimal.Decimal `json:"service_fee_amount"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	RateSource           string          `json:"rate_source"`
	RateFetchedAt        time.Time       `json:"rate_fetched_at"`
	IsStale              bool            `json:"is_stale"`
	CalculatedAt         time.Time       `json:"calculated_at"`
}

// RateResponse - курс с признаком устаревания
type RateResponse struct {
	RateRecord
	BaseCurrency string `json:"base_currency"`
	IsStale      bool   `json:"is_stale"`
}

// AllRatesResponse - GET /all
type AllRatesResponse struct {
	BaseCurrency string         `json:"base_currency"`
	Rates        []RateResponse `json:"rates"`
	Count        int            `json:"count"`
	LastUpdated  *time.Time     `json:"last_updated,omitempty"`
}

// HistoryResponse - GET /history/:currency
type HistoryResponse struct {
	CurrencyCode string         `json:"currency_code"`
	BaseCurrency string         `json:"base_currency"`
	Days         int            `json:"days"`
	From         time.Time      `json:"from"`
	To           time.Time      `json:"to"`
	History      []HistoryEntry `json:"history"`
	Count        int            `json:"count"`
}

type HistoryEntry struct {
	RateToBase decimal.Decimal `json:"rate_to_base"`
	Source     string          `json:"source"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

// CompareRequest - GET /compare
type CompareRequest struct {
	BaseCurrency     string          `form:"base_currency" validate:"required,len=3,alpha"`
	TargetCurrencies []string        `form:"target_currencies" validate:"required,min=1,max=20,dive,len=3,alpha"`
	Amount           decimal.Decimal `form:"-"`
}

type CompareResponse struct {
	BaseCurrency string                `json:"base_currency"`
	Amount       decimal.Decimal       `json:"amount"`
	Comparisons  map[string]Comparison `json:"comparisons"`
	Errors       map[string]string     `json:"errors,omitempty"`
	ComparedAt   time.Time             `json:"compared_at"`
}

type Comparison struct {
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	IsStale         bool            `json:"is_stale"`
}

// UpdateAcceptedResponse - POST /update, 202
type UpdateAcceptedResponse struct {
	UpdateID   string   `json:"update_id"`
	Status     string   `json:"status"`
	Currencies []string `json:"currencies"`
	Force      bool     `json:"force"`
}

// RatesHealth - доступность курсов для /health
type RatesHealth struct {
	Status          string     `json:"status"` // healthy, warning, critical
	Total           int        `json:"total_currencies"`
	Available       int        `json:"available"`
	Stale           []string   `json:"stale,omitempty"`
	Missing         []string   `json:"missing,omitempty"`
	LastUpdated     *time.Time `json:"last_updated,omitempty"`
	RefreshInFlight int        `json:"refresh_in_flight"`
}

const (
	HealthStatusHealthy  = "healthy"
	HealthStatusWarning  = "warning"
	HealthStatusCritical = "critical"
)

// WebhookEnvelope - общий формат тела вебхука
type WebhookEnvelope struct {
	EventID    string          `json:"event_id" validate:"required,max=128"`
	EventType  string          `json:"event_type" validate:"required,max=64"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// RateUpdateData - data для rate.updated
type RateUpdateData struct {
	CurrencyCode string          `json:"currency_code" validate:"required,len=3"`
	RateToBase   decimal.Decimal `json:"rate_to_base"`
	FetchedAt    *time.Time      `json:"fetched_at,omitempty"` // по умолчанию occurred_at
	Source       string          `json:"source,omitempty"`
}

// PaymentEventData - data для payment.*
type PaymentEventData struct {
	TransactionID string `json:"transaction_id" validate:"required,max=64"`
}

// WebhookResponse - ответ провайдеру
type WebhookResponse struct {
	EventID    string        `json:"event_id,omitempty"`
	Status     WebhookStatus `json:"status"`
	Outcome    string        `json:"outcome,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	RetryLater bool          `json:"retry_later,omitempty"`
}

// CreateTransactionRequest - POST /transactions
type CreateTransactionRequest struct {
	TransactionID string          `json:"transaction_id" validate:"required,max=64"`
	Provider      string          `json:"provider" validate:"required,max=50"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,len=3,alpha"`
}
