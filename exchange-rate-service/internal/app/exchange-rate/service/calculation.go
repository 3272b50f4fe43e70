package service

import (
	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// moneyPlaces - точность денежных сумм на выходе
const moneyPlaces = 2

// Conversion - результат пересчета. Суммы округлены до 2 знаков половиной вверх,
// промежуточные вычисления идут в полной точности.
type Conversion struct {
	Amount          decimal.Decimal
	Rate            decimal.Decimal
	FeePercent      decimal.Decimal
	ConvertedAmount decimal.Decimal
	ServiceFee      decimal.Decimal
	TotalAmount     decimal.Decimal
}

// CalculationEngine - чистая арифметика пересчета, без доступа к хранилищу
type CalculationEngine struct {
	defaultFee decimal.Decimal
}

func NewCalculationEngine(defaultFeePercent decimal.Decimal) *CalculationEngine {
	return &CalculationEngine{defaultFee: defaultFeePercent}
}

func (e *CalculationEngine) DefaultFee() decimal.Decimal {
	return e.defaultFee
}

// Convert: converted = amount * rate, fee = converted * fee% / 100, total = converted + fee.
// Некорректный ввод возвращает ValidationError, значения не подрезаются.
func (e *CalculationEngine) Convert(amount, rate, feePercent decimal.Decimal) (Conversion, error) {
	if !amount.IsPositive() {
		return Conversion{}, NewValidationError("amount", "must be greater than 0")
	}
	if !rate.IsPositive() {
		return Conversion{}, NewValidationError("rate", "must be greater than 0")
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(hundred) {
		return Conversion{}, NewValidationError("service_fee_percentage", "must be between 0 and 100")
	}

	converted := amount.Mul(rate)
	fee := converted.Mul(feePercent).Div(hundred)
	total := converted.Add(fee)

	return Conversion{
		Amount:          amount,
		Rate:            rate,
		FeePercent:      feePercent,
		ConvertedAmount: roundMoney(converted),
		ServiceFee:      roundMoney(fee),
		TotalAmount:     roundMoney(total),
	}, nil
}

// CrossRate - сколько единиц to стоит одна единица from, через базовую валюту
func (e *CalculationEngine) CrossRate(from, to entity.RateRecord) (decimal.Decimal, error) {
	if !from.RateToBase.IsPositive() || !to.RateToBase.IsPositive() {
		return decimal.Zero, NewValidationError("rate", "must be greater than 0")
	}
	return from.RateToBase.Div(to.RateToBase), nil
}

// roundMoney округляет половиной вверх. decimal.Round округляет половину от нуля,
// для положительных сумм это одно и то же.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}
