package service

import (
	"errors"
	"fmt"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/repository"
	"fxgate/pkg/logger"
	"fxgate/pkg/metrics"

	"github.com/shopspring/decimal"
)

const (
	MinHistoryDays     = 1
	MaxHistoryDays     = 365
	DefaultHistoryDays = 7

	// rateDisplayPlaces - точность кросс-курса в ответах, расчет идет по полному значению
	rateDisplayPlaces = 6
)

type RateServiceConfig struct {
	BaseCurrency     string
	MaxStaleness     time.Duration // 0 - устаревший курс отдается без ограничения
	HistoryRetention time.Duration
}

// RateService - чтение курсов, расчеты и история для HTTP слоя.
// Никогда не ходит к провайдеру: только RateStore и HistoryLog.
type RateService struct {
	store     *repository.RateStore
	history   *repository.HistoryLog
	scheduler RefreshSchedulerInterface
	engine    *CalculationEngine
	cfg       RateServiceConfig
	now       func() time.Time
}

func NewRateService(
	store *repository.RateStore,
	history *repository.HistoryLog,
	scheduler RefreshSchedulerInterface,
	engine *CalculationEngine,
	cfg RateServiceConfig,
) *RateService {
	return &RateService{
		store:     store,
		history:   history,
		scheduler: scheduler,
		engine:    engine,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *RateService) normalize(field, raw string) (string, error) {
	code := entity.NormalizeCurrency(raw)
	if !entity.IsCurrencyCode(code) {
		return "", NewValidationError(field, "invalid currency code %q", raw)
	}
	return code, nil
}

func (s *RateService) baseRecord(now time.Time) entity.RateRecord {
	return entity.RateRecord{
		CurrencyCode: s.cfg.BaseCurrency,
		RateToBase:   one,
		Source:       "base",
		FetchedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
		IsActive:     true,
	}
}

// lookup возвращает курс для расчетов.
// Неизвестная валюта - ErrNotFound, нет ни одного курса или курс старше MaxStaleness - ErrRateUnavailable.
func (s *RateService) lookup(code string, now time.Time) (entity.RateRecord, error) {
	if code == s.cfg.BaseCurrency {
		return s.baseRecord(now), nil
	}
	if !s.store.IsRegistered(code) {
		return entity.RateRecord{}, fmt.Errorf("%w: currency %s is not supported", ErrNotFound, code)
	}

	rec, ok := s.store.Get(code)
	if !ok {
		return entity.RateRecord{}, fmt.Errorf("%w: no rate for %s", ErrRateUnavailable, code)
	}

	if rec.IsStale(now) {
		overdue := now.Sub(rec.ExpiresAt)
		if s.cfg.MaxStaleness > 0 && overdue > s.cfg.MaxStaleness {
			return entity.RateRecord{}, fmt.Errorf("%w: rate for %s is stale for %s", ErrRateUnavailable, code, overdue.Round(time.Second))
		}
		logger.Warn().
			Str("currency", code).
			Dur("overdue", overdue).
			Msg("Serving stale rate")
	}
	return rec, nil
}

func (s *RateService) toResponse(rec entity.RateRecord, now time.Time) entity.RateResponse {
	return entity.RateResponse{
		RateRecord:   rec,
		BaseCurrency: s.cfg.BaseCurrency,
		IsStale:      rec.IsStale(now),
	}
}

// GetCurrent возвращает активный курс валюты
func (s *RateService) GetCurrent(currency string) (*entity.RateResponse, error) {
	code, err := s.normalize("currency", currency)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if code != s.cfg.BaseCurrency {
		if _, ok := s.store.Get(code); !ok {
			return nil, fmt.Errorf("%w: no rate for %s", ErrNotFound, code)
		}
	}

	rec, err := s.lookup(code, now)
	if err != nil {
		return nil, err
	}
	resp := s.toResponse(rec, now)
	return &resp, nil
}

// GetAll возвращает активные курсы в порядке регистрации валют
func (s *RateService) GetAll() *entity.AllRatesResponse {
	now := s.now()
	records := s.store.GetAll()

	resp := &entity.AllRatesResponse{
		BaseCurrency: s.cfg.BaseCurrency,
		Rates:        make([]entity.RateResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.Rates = append(resp.Rates, s.toResponse(rec, now))
		if resp.LastUpdated == nil || rec.FetchedAt.After(*resp.LastUpdated) {
			fetchedAt := rec.FetchedAt
			resp.LastUpdated = &fetchedAt
		}
	}
	resp.Count = len(resp.Rates)
	return resp
}

// Calculate пересчитывает сумму from -> to с комиссией сервиса
func (s *RateService) Calculate(req *entity.CalculateRequest) (*entity.CalculationResult, error) {
	result, err := s.calculate(req)
	switch {
	case err == nil:
		metrics.Calculations.WithLabelValues("success").Inc()
	case IsValidation(err):
		metrics.Calculations.WithLabelValues("invalid").Inc()
	case errors.Is(err, ErrRateUnavailable):
		metrics.Calculations.WithLabelValues("unavailable").Inc()
	default:
		metrics.Calculations.WithLabelValues("not_found").Inc()
	}
	return result, err
}

func (s *RateService) calculate(req *entity.CalculateRequest) (*entity.CalculationResult, error) {
	if !req.Amount.IsPositive() {
		return nil, NewValidationError("amount", "must be greater than 0")
	}

	from, err := s.normalize("from_currency", req.FromCurrency)
	if err != nil {
		return nil, err
	}
	to := s.cfg.BaseCurrency
	if req.ToCurrency != "" {
		if to, err = s.normalize("to_currency", req.ToCurrency); err != nil {
			return nil, err
		}
	}
	fee := s.engine.DefaultFee()
	if req.ServiceFeePercentage != nil {
		fee = *req.ServiceFeePercentage
	}

	now := s.now()
	fromRec, err := s.lookup(from, now)
	if err != nil {
		return nil, err
	}
	toRec, err := s.lookup(to, now)
	if err != nil {
		return nil, err
	}

	rate, err := s.engine.CrossRate(fromRec, toRec)
	if err != nil {
		return nil, err
	}
	conv, err := s.engine.Convert(req.Amount, rate, fee)
	if err != nil {
		return nil, err
	}

	// Источник и время берем у небазовой стороны пары
	sourceRec := fromRec
	if from == s.cfg.BaseCurrency {
		sourceRec = toRec
	}

	return &entity.CalculationResult{
		FromCurrency:         from,
		ToCurrency:           to,
		OriginalAmount:       conv.Amount,
		ExchangeRate:         rate.Round(rateDisplayPlaces),
		ConvertedAmount:      conv.ConvertedAmount,
		ServiceFeePercentage: conv.FeePercent,
		ServiceFeeAmount:     conv.ServiceFee,
		TotalAmount:          conv.TotalAmount,
		RateSource:           sourceRec.Source,
		RateFetchedAt:        sourceRec.FetchedAt,
		IsStale:              fromRec.IsStale(now) || toRec.IsStale(now),
		CalculatedAt:         now,
	}, nil
}

// GetHistory возвращает историю курса за последние days дней
func (s *RateService) GetHistory(currency string, days int) (*entity.HistoryResponse, error) {
	if days < MinHistoryDays || days > MaxHistoryDays {
		return nil, NewValidationError("days", "must be between %d and %d", MinHistoryDays, MaxHistoryDays)
	}
	code, err := s.normalize("currency", currency)
	if err != nil {
		return nil, err
	}
	if !s.store.IsRegistered(code) {
		return nil, fmt.Errorf("%w: currency %s is not supported", ErrNotFound, code)
	}

	end := s.now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	resp := &entity.HistoryResponse{
		CurrencyCode: code,
		BaseCurrency: s.cfg.BaseCurrency,
		Days:         days,
		From:         start,
		To:           end,
		History:      []entity.HistoryEntry{},
	}
	for rec := range s.history.Query(code, start, end) {
		resp.History = append(resp.History, entity.HistoryEntry{
			RateToBase: rec.RateToBase,
			Source:     rec.Source,
			FetchedAt:  rec.FetchedAt,
		})
	}
	resp.Count = len(resp.History)
	return resp, nil
}

// Compare пересчитывает amount из base во все целевые валюты.
// Ошибка по одной валюте не прерывает остальные.
func (s *RateService) Compare(base string, targets []string, amount decimal.Decimal) (*entity.CompareResponse, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "must be greater than 0")
	}
	if len(targets) == 0 {
		return nil, NewValidationError("target_currencies", "at least one currency required")
	}
	baseCode, err := s.normalize("base_currency", base)
	if err != nil {
		return nil, err
	}

	now := s.now()
	baseRec, err := s.lookup(baseCode, now)
	if err != nil {
		return nil, err
	}

	resp := &entity.CompareResponse{
		BaseCurrency: baseCode,
		Amount:       amount,
		Comparisons:  make(map[string]entity.Comparison, len(targets)),
		ComparedAt:   now,
	}
	for _, raw := range targets {
		code, err := s.normalize("target_currencies", raw)
		if err == nil {
			var target entity.RateRecord
			if target, err = s.lookup(code, now); err == nil {
				var rate decimal.Decimal
				if rate, err = s.engine.CrossRate(baseRec, target); err == nil {
					resp.Comparisons[code] = entity.Comparison{
						ExchangeRate:    rate.Round(rateDisplayPlaces),
						ConvertedAmount: roundMoney(amount.Mul(rate)),
						IsStale:         baseRec.IsStale(now) || target.IsStale(now),
					}
					continue
				}
			}
		}
		if resp.Errors == nil {
			resp.Errors = make(map[string]string)
		}
		resp.Errors[entity.NormalizeCurrency(raw)] = err.Error()
	}
	return resp, nil
}

// RatesHealth: нет ни одного курса - critical, меньше 80% или есть устаревшие - warning
func (s *RateService) RatesHealth() *entity.RatesHealth {
	now := s.now()
	currencies := s.store.Currencies()

	health := &entity.RatesHealth{Total: len(currencies)}
	for _, code := range currencies {
		rec, ok := s.store.Get(code)
		if !ok {
			health.Missing = append(health.Missing, code)
			continue
		}
		health.Available++
		metrics.RateAgeSeconds.WithLabelValues(code).Set(now.Sub(rec.FetchedAt).Seconds())
		if rec.IsStale(now) {
			health.Stale = append(health.Stale, code)
		}
		if health.LastUpdated == nil || rec.FetchedAt.After(*health.LastUpdated) {
			fetchedAt := rec.FetchedAt
			health.LastUpdated = &fetchedAt
		}
	}
	if s.scheduler != nil {
		health.RefreshInFlight = s.scheduler.InFlight()
	}

	switch {
	case health.Available == 0:
		health.Status = entity.HealthStatusCritical
	case health.Available*5 < health.Total*4 || len(health.Stale) > 0:
		health.Status = entity.HealthStatusWarning
	default:
		health.Status = entity.HealthStatusHealthy
	}
	return health
}

// PruneHistory удаляет записи истории старше HistoryRetention
func (s *RateService) PruneHistory(now time.Time) int {
	if s.cfg.HistoryRetention <= 0 {
		return 0
	}
	removed := s.history.Prune(now.Add(-s.cfg.HistoryRetention))
	if removed > 0 {
		logger.Info().Int("removed", removed).Msg("Pruned rate history")
	}
	return removed
}
