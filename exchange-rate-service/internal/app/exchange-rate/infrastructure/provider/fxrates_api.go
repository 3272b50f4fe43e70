package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fxgate/pkg/metrics"

	"github.com/shopspring/decimal"
)

const FXRatesAPIName = "fxratesapi"

type fxRatesAPIResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// FXRatesAPIProvider - резервный провайдер FxRatesAPI, ключ не нужен.
// GET {url}?base={BASE}&currencies=USD,EUR
type FXRatesAPIProvider struct {
	baseURL    string
	base       string
	timeout    time.Duration
	httpClient *http.Client
}

func NewFXRatesAPIProvider(baseURL, base string, timeout time.Duration) *FXRatesAPIProvider {
	return &FXRatesAPIProvider{
		baseURL:    baseURL,
		base:       base,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *FXRatesAPIProvider) Name() string {
	return FXRatesAPIName
}

func (p *FXRatesAPIProvider) Fetch(ctx context.Context, currencies []string) (*FetchResult, error) {
	timer := metrics.NewUpstreamTimer(p.Name())

	query := url.Values{}
	query.Set("base", p.base)
	query.Set("currencies", strings.Join(currencies, ","))

	var resp fxRatesAPIResponse
	if err := getJSON(ctx, p.httpClient, p.timeout, p.baseURL+"?"+query.Encode(), &resp); err != nil {
		timer.Done("failed")
		return nil, &FetchError{Provider: p.Name(), Err: err}
	}

	result := invertQuotes(resp.Rates, currencies, p.Name())
	timer.Done(resultStatus(result))
	return result, nil
}
