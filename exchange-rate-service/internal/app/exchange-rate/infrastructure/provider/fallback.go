package provider

import (
	"context"
	"errors"

	"fxgate/pkg/logger"
)

// FallbackProvider опрашивает провайдеров по очереди.
// Следующий получает только валюты, которые не вернул предыдущий.
type FallbackProvider struct {
	providers []RateProvider
}

func NewFallbackProvider(providers ...RateProvider) *FallbackProvider {
	return &FallbackProvider{providers: providers}
}

func (p *FallbackProvider) Name() string {
	return "fallback"
}

func (p *FallbackProvider) Fetch(ctx context.Context, currencies []string) (*FetchResult, error) {
	merged := newFetchResult()
	remaining := currencies
	var errs []error

	for _, provider := range p.providers {
		if len(remaining) == 0 {
			break
		}

		res, err := provider.Fetch(ctx, remaining)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("provider", provider.Name()).
				Strs("currencies", remaining).
				Msg("Rate provider failed, trying next")
			errs = append(errs, err)
			continue
		}

		next := make([]string, 0, len(res.Failures))
		for _, code := range remaining {
			if q, ok := res.Quotes[code]; ok {
				merged.Quotes[code] = q
				delete(merged.Failures, code)
				continue
			}
			if ferr, ok := res.Failures[code]; ok {
				merged.Failures[code] = ferr
			} else {
				merged.Failures[code] = ErrMissingRate
			}
			next = append(next, code)
		}
		remaining = next
	}

	if len(merged.Quotes) == 0 && len(errs) > 0 && len(errs) == len(p.providers) {
		return nil, &FetchError{Provider: p.Name(), Err: errors.Join(errs...)}
	}

	// Провайдер с ошибкой целиком мог не оставить записей в Failures
	for _, code := range remaining {
		if _, ok := merged.Failures[code]; !ok && len(errs) > 0 {
			merged.Failures[code] = errs[len(errs)-1]
		}
	}

	return merged, nil
}
