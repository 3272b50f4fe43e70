package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingRate   = errors.New("rate missing from upstream response")
	ErrNonPositive   = errors.New("upstream returned non-positive rate")
	ErrNotConfigured = errors.New("provider is not configured")
)

// RateProvider - источник курсов. Каждая реализация сама приводит ответ к rate_to_base.
type RateProvider interface {
	Name() string
	Fetch(ctx context.Context, currencies []string) (*FetchResult, error)
}

// Quote - нормализованный курс: сколько базовой валюты стоит единица валюты
type Quote struct {
	Rate   decimal.Decimal
	Source string
}

// FetchResult - частичный результат: полученные курсы и ошибки по остальным валютам
type FetchResult struct {
	Quotes   map[string]Quote
	Failures map[string]error
}

func newFetchResult() *FetchResult {
	return &FetchResult{
		Quotes:   make(map[string]Quote),
		Failures: make(map[string]error),
	}
}

// FetchError - вызов провайдера не удался целиком (сеть, таймаут, статус, формат)
type FetchError struct {
	Provider string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch failed: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// invertQuotes приводит котировки вида base->X (1 BDT = 0.0085 USD) к rate_to_base = 1/x.
// Нулевые, отрицательные и отсутствующие значения - ошибки по валюте, без подстановки значений.
func invertQuotes(rates map[string]decimal.Decimal, currencies []string, source string) *FetchResult {
	result := newFetchResult()
	one := decimal.NewFromInt(1)
	for _, code := range currencies {
		v, ok := rates[code]
		switch {
		case !ok:
			result.Failures[code] = ErrMissingRate
		case !v.IsPositive():
			result.Failures[code] = fmt.Errorf("%w: %s", ErrNonPositive, v.String())
		default:
			result.Quotes[code] = Quote{Rate: one.Div(v), Source: source}
		}
	}
	return result
}

// getJSON выполняет GET и декодирует JSON ответ.
// Таймаут задается и на http.Client, и на контекст запроса.
func getJSON(ctx context.Context, client *http.Client, timeout time.Duration, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal API response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
