package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===================== ExchangeRateAPIProvider Tests =====================

func TestExchangeRateAPI_Fetch_InvertsQuotes(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/test-key/latest/BDT", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success","base_code":"BDT","conversion_rates":{"BDT":1,"USD":0.008,"EUR":0.0078125,"GBP":0}}`))
	}))
	defer server.Close()

	p := NewExchangeRateAPIProvider(server.URL+"/v6", "test-key", "BDT", 5*time.Second)

	// Act
	result, err := p.Fetch(context.Background(), []string{"USD", "EUR", "GBP", "JPY"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "125", result.Quotes["USD"].Rate.String())
	assert.Equal(t, "128", result.Quotes["EUR"].Rate.String())
	assert.Equal(t, ExchangeRateAPIName, result.Quotes["USD"].Source)
	assert.ErrorIs(t, result.Failures["GBP"], ErrNonPositive)
	assert.ErrorIs(t, result.Failures["JPY"], ErrMissingRate)
	assert.NotContains(t, result.Quotes, "GBP")
}

func TestExchangeRateAPI_Fetch_ErrorResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"error","error-type":"invalid-key"}`))
	}))
	defer server.Close()

	p := NewExchangeRateAPIProvider(server.URL, "bad", "BDT", 5*time.Second)

	result, err := p.Fetch(context.Background(), []string{"USD"})

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, ExchangeRateAPIName, fetchErr.Provider)
	assert.Contains(t, err.Error(), "invalid-key")
	assert.Nil(t, result)
}

func TestExchangeRateAPI_Fetch_NoAPIKey(t *testing.T) {
	p := NewExchangeRateAPIProvider("http://unused", "", "BDT", time.Second)

	_, err := p.Fetch(context.Background(), []string{"USD"})

	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestExchangeRateAPI_Fetch_HTTPError_500(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	p := NewExchangeRateAPIProvider(server.URL, "key", "BDT", 5*time.Second)

	_, err := p.Fetch(context.Background(), []string{"USD"})

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "status 500")
}

func TestExchangeRateAPI_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := NewExchangeRateAPIProvider(server.URL, "key", "BDT", 50*time.Millisecond)

	start := time.Now()
	_, err := p.Fetch(context.Background(), []string{"USD"})

	var fetchErr *FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Less(t, time.Since(start), time.Second)
}

// ===================== FXRatesAPIProvider Tests =====================

func TestFXRatesAPI_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BDT", r.URL.Query().Get("base"))
		assert.Equal(t, "USD,CHF", r.URL.Query().Get("currencies"))
		_, _ = w.Write([]byte(`{"success":true,"base":"BDT","rates":{"USD":0.008,"CHF":"0.0075"}}`))
	}))
	defer server.Close()

	p := NewFXRatesAPIProvider(server.URL, "BDT", 5*time.Second)

	result, err := p.Fetch(context.Background(), []string{"USD", "CHF"})

	require.NoError(t, err)
	assert.Empty(t, result.Failures)
	assert.Equal(t, "125", result.Quotes["USD"].Rate.String())
	assert.True(t, result.Quotes["CHF"].Rate.GreaterThan(decimal.NewFromInt(133)))
}

func TestFXRatesAPI_Fetch_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rates":`))
	}))
	defer server.Close()

	p := NewFXRatesAPIProvider(server.URL, "BDT", 5*time.Second)

	_, err := p.Fetch(context.Background(), []string{"USD"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}

// ===================== FallbackProvider Tests =====================

type stubProvider struct {
	name    string
	quotes  map[string]string
	err     error
	calls   atomic.Int32
	lastReq []string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Fetch(_ context.Context, currencies []string) (*FetchResult, error) {
	s.calls.Add(1)
	s.lastReq = currencies
	if s.err != nil {
		return nil, &FetchError{Provider: s.name, Err: s.err}
	}
	res := newFetchResult()
	for _, code := range currencies {
		if v, ok := s.quotes[code]; ok {
			res.Quotes[code] = Quote{Rate: decimal.RequireFromString(v), Source: s.name}
		} else {
			res.Failures[code] = ErrMissingRate
		}
	}
	return res, nil
}

func TestFallback_AsksNextOnlyForMissing(t *testing.T) {
	primary := &stubProvider{name: "primary", quotes: map[string]string{"USD": "117.5"}}
	backup := &stubProvider{name: "backup", quotes: map[string]string{"EUR": "128", "USD": "1"}}
	p := NewFallbackProvider(primary, backup)

	result, err := p.Fetch(context.Background(), []string{"USD", "EUR", "GBP"})

	require.NoError(t, err)
	assert.Equal(t, []string{"EUR", "GBP"}, backup.lastReq)
	assert.Equal(t, "primary", result.Quotes["USD"].Source)
	assert.Equal(t, "backup", result.Quotes["EUR"].Source)
	assert.Len(t, result.Failures, 1)
	assert.ErrorIs(t, result.Failures["GBP"], ErrMissingRate)
}

func TestFallback_PrimaryDown(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("connection refused")}
	backup := &stubProvider{name: "backup", quotes: map[string]string{"USD": "117.5"}}
	p := NewFallbackProvider(primary, backup)

	result, err := p.Fetch(context.Background(), []string{"USD"})

	require.NoError(t, err)
	assert.Equal(t, "backup", result.Quotes["USD"].Source)
}

func TestFallback_AllDown(t *testing.T) {
	p := NewFallbackProvider(
		&stubProvider{name: "primary", err: errors.New("timeout")},
		&stubProvider{name: "backup", err: errors.New("503")},
	)

	result, err := p.Fetch(context.Background(), []string{"USD"})

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "fallback", fetchErr.Provider)
	assert.Nil(t, result)
}

func TestFallback_StopsWhenComplete(t *testing.T) {
	primary := &stubProvider{name: "primary", quotes: map[string]string{"USD": "117.5"}}
	backup := &stubProvider{name: "backup"}
	p := NewFallbackProvider(primary, backup)

	_, err := p.Fetch(context.Background(), []string{"USD"})

	require.NoError(t, err)
	assert.Equal(t, int32(0), backup.calls.Load())
}
