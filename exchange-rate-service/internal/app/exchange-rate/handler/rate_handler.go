package handler

import (
	"net/http"
	"strconv"
	"strings"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const defaultCompareAmount = "1"

// RateHandler обрабатывает HTTP запросы для курсов валют
type RateHandler struct {
	rateService service.RateServiceInterface
	scheduler   service.RefreshSchedulerInterface
	validator   *validator.Validate
}

// NewRateHandler создает новый handler курсов
func NewRateHandler(rateService service.RateServiceInterface, scheduler service.RefreshSchedulerInterface) *RateHandler {
	return &RateHandler{
		rateService: rateService,
		scheduler:   scheduler,
		validator:   validator.New(),
	}
}

// GetCurrent возвращает текущий курс валюты
// GET /current?currency=USD
func (h *RateHandler) GetCurrent(c *gin.Context) {
	currency := c.Query("currency")
	if currency == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currency query parameter is required"})
		return
	}

	rate, err := h.rateService.GetCurrent(currency)
	if err != nil {
		respondError(c, err, "Failed to get exchange rate")
		return
	}

	c.JSON(http.StatusOK, rate)
}

// GetAll возвращает все курсы в порядке поддерживаемых валют
// GET /all
func (h *RateHandler) GetAll(c *gin.Context) {
	c.JSON(http.StatusOK, h.rateService.GetAll())
}

// Calculate рассчитывает сумму с комиссией
// POST /calculate
func (h *RateHandler) Calculate(c *gin.Context) {
	var req entity.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return
	}

	result, err := h.rateService.Calculate(&req)
	if err != nil {
		respondError(c, err, "Failed to calculate amount")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetHistory возвращает историю курса за N дней
// GET /history/:currency?days=7
func (h *RateHandler) GetHistory(c *gin.Context) {
	currency := c.Param("currency")

	days := service.DefaultHistoryDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
			return
		}
		days = parsed
	}

	history, err := h.rateService.GetHistory(currency, days)
	if err != nil {
		respondError(c, err, "Failed to get rate history")
		return
	}

	c.JSON(http.StatusOK, history)
}

// Compare пересчитывает сумму из базовой валюты в несколько целевых
// GET /compare?base_currency=USD&target_currencies=EUR,GBP&amount=1000
func (h *RateHandler) Compare(c *gin.Context) {
	req := entity.CompareRequest{
		BaseCurrency:     strings.ToUpper(c.Query("base_currency")),
		TargetCurrencies: splitList(c.QueryArray("target_currencies")),
	}

	amount, err := decimal.NewFromString(c.DefaultQuery("amount", defaultCompareAmount))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal number"})
		return
	}
	req.Amount = amount

	if err := h.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return
	}

	result, err := h.rateService.Compare(req.BaseCurrency, req.TargetCurrencies, req.Amount)
	if err != nil {
		respondError(c, err, "Failed to compare rates")
		return
	}

	c.JSON(http.StatusOK, result)
}

// TriggerUpdate ставит обновление курсов в очередь и сразу отвечает 202
// POST /update?currencies=USD,EUR&force=true
func (h *RateHandler) TriggerUpdate(c *gin.Context) {
	force := false
	if raw := c.Query("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "force must be a boolean"})
			return
		}
		force = parsed
	}

	currencies := splitList(c.QueryArray("currencies"))

	job, err := h.scheduler.Submit(service.SourceManual, currencies, force)
	if err != nil {
		respondError(c, err, "Failed to schedule rate update")
		return
	}

	c.JSON(http.StatusAccepted, entity.UpdateAcceptedResponse{
		UpdateID:   job.ID,
		Status:     string(job.Status),
		Currencies: job.Currencies,
		Force:      job.Force,
	})
}

// GetUpdate возвращает статус асинхронного обновления
// GET /update/:id
func (h *RateHandler) GetUpdate(c *gin.Context) {
	job, ok := h.scheduler.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": service.ErrJobNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

// splitList принимает и повторяющиеся параметры, и список через запятую
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, strings.ToUpper(part))
			}
		}
	}
	return out
}
