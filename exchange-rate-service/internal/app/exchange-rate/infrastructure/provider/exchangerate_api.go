package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fxgate/pkg/metrics"

	"github.com/shopspring/decimal"
)

const ExchangeRateAPIName = "exchangerate-api"

type exchangeRateAPIResponse struct {
	Result          string                     `json:"result"`
	ErrorType       string                     `json:"error-type"`
	BaseCode        string                     `json:"base_code"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

// ExchangeRateAPIProvider - основной провайдер ExchangeRate-API v6.
// GET {url}/{key}/latest/{BASE} возвращает курсы base->X.
type ExchangeRateAPIProvider struct {
	baseURL    string
	apiKey     string
	base       string
	timeout    time.Duration
	httpClient *http.Client
}

func NewExchangeRateAPIProvider(baseURL, apiKey, base string, timeout time.Duration) *ExchangeRateAPIProvider {
	return &ExchangeRateAPIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		base:    base,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *ExchangeRateAPIProvider) Name() string {
	return ExchangeRateAPIName
}

func (p *ExchangeRateAPIProvider) Fetch(ctx context.Context, currencies []string) (*FetchResult, error) {
	timer := metrics.NewUpstreamTimer(p.Name())

	if p.apiKey == "" {
		timer.Done("failed")
		return nil, &FetchError{Provider: p.Name(), Err: ErrNotConfigured}
	}

	var resp exchangeRateAPIResponse
	url := fmt.Sprintf("%s/%s/latest/%s", p.baseURL, p.apiKey, p.base)
	if err := getJSON(ctx, p.httpClient, p.timeout, url, &resp); err != nil {
		timer.Done("failed")
		return nil, &FetchError{Provider: p.Name(), Err: err}
	}

	if resp.Result != "success" {
		timer.Done("failed")
		return nil, &FetchError{Provider: p.Name(), Err: fmt.Errorf("API result %q: %s", resp.Result, resp.ErrorType)}
	}

	result := invertQuotes(resp.ConversionRates, currencies, p.Name())
	timer.Done(resultStatus(result))
	return result, nil
}

func resultStatus(r *FetchResult) string {
	switch {
	case len(r.Failures) == 0:
		return "success"
	case len(r.Quotes) == 0:
		return "failed"
	default:
		return "partial"
	}
}
