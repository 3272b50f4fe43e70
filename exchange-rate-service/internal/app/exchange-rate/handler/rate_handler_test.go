package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service/mocks"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func sampleRate(code, rate string) *entity.RateResponse {
	fetchedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &entity.RateResponse{
		RateRecord: entity.RateRecord{
			CurrencyCode: code,
			RateToBase:   decimal.RequireFromString(rate),
			Source:       "exchangerate-api",
			FetchedAt:    fetchedAt,
			ExpiresAt:    fetchedAt.Add(10 * time.Minute),
			IsActive:     true,
		},
		BaseCurrency: "RUB",
	}
}

// ===================== GetCurrent Handler Tests =====================

func TestGetCurrentHandler_Success(t *testing.T) {
	// Arrange
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/current", h.GetCurrent)

	rateSvc.On("GetCurrent", "USD").Return(sampleRate("USD", "92.5"), nil)

	// Act
	req := httptest.NewRequest(http.MethodGet, "/current?currency=USD", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)

	var resp entity.RateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "USD", resp.CurrencyCode)
	assert.True(t, resp.RateToBase.Equal(decimal.RequireFromString("92.5")))
	rateSvc.AssertExpectations(t)
}

func TestGetCurrentHandler_MissingCurrency(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/current", h.GetCurrent)

	req := httptest.NewRequest(http.MethodGet, "/current", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	rateSvc.AssertNotCalled(t, "GetCurrent", mock.Anything)
}

func TestGetCurrentHandler_NotFound(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/current", h.GetCurrent)

	rateSvc.On("GetCurrent", "JPY").Return(nil, service.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/current?currency=JPY", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCurrentHandler_InternalErrorHidesDetails(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/current", h.GetCurrent)

	rateSvc.On("GetCurrent", "USD").Return(nil, assert.AnError)

	req := httptest.NewRequest(http.MethodGet, "/current?currency=USD", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to get exchange rate", decodeError(t, w))
}

// ===================== GetAll Handler Tests =====================

func TestGetAllHandler_Success(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/all", h.GetAll)

	rateSvc.On("GetAll").Return(&entity.AllRatesResponse{
		BaseCurrency: "RUB",
		Rates:        []entity.RateResponse{*sampleRate("USD", "92.5"), *sampleRate("EUR", "100.1")},
		Count:        2,
	})

	req := httptest.NewRequest(http.MethodGet, "/all", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp entity.AllRatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "USD", resp.Rates[0].CurrencyCode)
	assert.Equal(t, "EUR", resp.Rates[1].CurrencyCode)
}

// ===================== Calculate Handler Tests =====================

func TestCalculateHandler_Success(t *testing.T) {
	// Arrange
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.POST("/calculate", h.Calculate)

	result := &entity.CalculationResult{
		FromCurrency:         "USD",
		ToCurrency:           "RUB",
		OriginalAmount:       decimal.RequireFromString("100"),
		ExchangeRate:         decimal.RequireFromString("117.5"),
		ConvertedAmount:      decimal.RequireFromString("11750.00"),
		ServiceFeePercentage: decimal.RequireFromString("2"),
		ServiceFeeAmount:     decimal.RequireFromString("235.00"),
		TotalAmount:          decimal.RequireFromString("11985.00"),
	}
	rateSvc.On("Calculate", mock.MatchedBy(func(req *entity.CalculateRequest) bool {
		return req.FromCurrency == "USD" && req.Amount.Equal(decimal.NewFromInt(100)) && req.ServiceFeePercentage != nil
	})).Return(result, nil)

	body := []byte(`{"from_currency":"USD","amount":100,"service_fee_percentage":"2.0"}`)

	// Act
	req := httptest.NewRequest(http.MethodPost, "/calculate", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	var resp entity.CalculationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.TotalAmount.Equal(decimal.RequireFromString("11985")))
	rateSvc.AssertExpectations(t)
}

func TestCalculateHandler_InvalidJSON(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.POST("/calculate", h.Calculate)

	req := httptest.NewRequest(http.MethodPost, "/calculate", bytes.NewBufferString("{invalid"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", decodeError(t, w))
}

func TestCalculateHandler_ValidationFailed(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.POST("/calculate", h.Calculate)

	req := httptest.NewRequest(http.MethodPost, "/calculate", bytes.NewBufferString(`{"from_currency":"US","amount":10}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "FromCurrency is len", decodeError(t, w))
	rateSvc.AssertNotCalled(t, "Calculate", mock.Anything)
}

func TestCalculateHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
	}{
		{"negative amount", service.NewValidationError("amount", "must be greater than 0"), http.StatusBadRequest},
		{"unknown currency", service.ErrNotFound, http.StatusNotFound},
		{"no rate yet", service.ErrRateUnavailable, http.StatusServiceUnavailable},
		{"unexpected", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			rateSvc := new(mocks.MockRateService)
			h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
			router.POST("/calculate", h.Calculate)

			rateSvc.On("Calculate", mock.Anything).Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodPost, "/calculate", bytes.NewBufferString(`{"from_currency":"USD","amount":-5}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

// ===================== GetHistory Handler Tests =====================

func TestGetHistoryHandler_DefaultDays(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/history/:currency", h.GetHistory)

	rateSvc.On("GetHistory", "USD", service.DefaultHistoryDays).
		Return(&entity.HistoryResponse{CurrencyCode: "USD", Days: service.DefaultHistoryDays}, nil)

	req := httptest.NewRequest(http.MethodGet, "/history/USD", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	rateSvc.AssertExpectations(t)
}

func TestGetHistoryHandler_ExplicitDays(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/history/:currency", h.GetHistory)

	rateSvc.On("GetHistory", "EUR", 30).Return(&entity.HistoryResponse{CurrencyCode: "EUR", Days: 30}, nil)

	req := httptest.NewRequest(http.MethodGet, "/history/EUR?days=30", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	rateSvc.AssertExpectations(t)
}

func TestGetHistoryHandler_InvalidDays(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/history/:currency", h.GetHistory)

	req := httptest.NewRequest(http.MethodGet, "/history/USD?days=week", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	rateSvc.AssertNotCalled(t, "GetHistory", mock.Anything, mock.Anything)
}

func TestGetHistoryHandler_DaysOutOfRange(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/history/:currency", h.GetHistory)

	rateSvc.On("GetHistory", "USD", 400).Return(nil, service.NewValidationError("days", "must be between 1 and 365"))

	req := httptest.NewRequest(http.MethodGet, "/history/USD?days=400", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "days")
}

// ===================== Compare Handler Tests =====================

func TestCompareHandler_CommaSeparatedTargets(t *testing.T) {
	// Arrange
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/compare", h.Compare)

	amount := decimal.NewFromInt(1000)
	rateSvc.On("Compare", "USD", []string{"EUR", "GBP"}, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(amount)
	})).Return(&entity.CompareResponse{BaseCurrency: "USD", Amount: amount}, nil)

	// Act
	req := httptest.NewRequest(http.MethodGet, "/compare?base_currency=usd&target_currencies=eur,%20GBP&amount=1000", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	rateSvc.AssertExpectations(t)
}

func TestCompareHandler_DefaultAmount(t *testing.T) {
	router := setupTestRouter()
	rateSvc := new(mocks.MockRateService)
	h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
	router.GET("/compare", h.Compare)

	rateSvc.On("Compare", "USD", []string{"EUR"}, mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.NewFromInt(1))
	})).Return(&entity.CompareResponse{BaseCurrency: "USD"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/compare?base_currency=USD&target_currencies=EUR", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	rateSvc.AssertExpectations(t)
}

func TestCompareHandler_BadInput(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing targets", "base_currency=USD"},
		{"missing base", "target_currencies=EUR"},
		{"invalid amount", "base_currency=USD&target_currencies=EUR&amount=lots"},
		{"invalid target code", "base_currency=USD&target_currencies=EURO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			rateSvc := new(mocks.MockRateService)
			h := NewRateHandler(rateSvc, new(mocks.MockRefreshScheduler))
			router.GET("/compare", h.Compare)

			req := httptest.NewRequest(http.MethodGet, "/compare?"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			rateSvc.AssertNotCalled(t, "Compare", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

// ===================== TriggerUpdate Handler Tests =====================

func TestTriggerUpdateHandler_Accepted(t *testing.T) {
	// Arrange
	router := setupTestRouter()
	scheduler := new(mocks.MockRefreshScheduler)
	h := NewRateHandler(new(mocks.MockRateService), scheduler)
	router.POST("/update", h.TriggerUpdate)

	scheduler.On("Submit", service.SourceManual, []string{"USD", "EUR"}, true).Return(&entity.RefreshJob{
		ID:         "manual-123",
		Status:     entity.RefreshJobPending,
		Currencies: []string{"USD", "EUR"},
		Force:      true,
	}, nil)

	// Act
	req := httptest.NewRequest(http.MethodPost, "/update?currencies=usd,eur&force=true", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp entity.UpdateAcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "manual-123", resp.UpdateID)
	assert.Equal(t, "pending", resp.Status)
	assert.True(t, resp.Force)
	scheduler.AssertExpectations(t)
}

func TestTriggerUpdateHandler_AllCurrencies(t *testing.T) {
	router := setupTestRouter()
	scheduler := new(mocks.MockRefreshScheduler)
	h := NewRateHandler(new(mocks.MockRateService), scheduler)
	router.POST("/update", h.TriggerUpdate)

	scheduler.On("Submit", service.SourceManual, []string(nil), false).
		Return(&entity.RefreshJob{ID: "manual-1", Status: entity.RefreshJobPending}, nil)

	req := httptest.NewRequest(http.MethodPost, "/update", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	scheduler.AssertExpectations(t)
}

func TestTriggerUpdateHandler_InvalidForce(t *testing.T) {
	router := setupTestRouter()
	scheduler := new(mocks.MockRefreshScheduler)
	h := NewRateHandler(new(mocks.MockRateService), scheduler)
	router.POST("/update", h.TriggerUpdate)

	req := httptest.NewRequest(http.MethodPost, "/update?force=maybe", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	scheduler.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestTriggerUpdateHandler_UnsupportedCurrency(t *testing.T) {
	router := setupTestRouter()
	scheduler := new(mocks.MockRefreshScheduler)
	h := NewRateHandler(new(mocks.MockRateService), scheduler)
	router.POST("/update", h.TriggerUpdate)

	scheduler.On("Submit", service.SourceManual, []string{"XYZ"}, false).
		Return(nil, service.NewValidationError("currencies", "currency XYZ is not supported"))

	req := httptest.NewRequest(http.MethodPost, "/update?currencies=XYZ", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ===================== GetUpdate Handler Tests =====================

func TestGetUpdateHandler(t *testing.T) {
	router := setupTestRouter()
	scheduler := new(mocks.MockRefreshScheduler)
	h := NewRateHandler(new(mocks.MockRateService), scheduler)
	router.GET("/update/:id", h.GetUpdate)

	scheduler.On("Job", "manual-1").Return(&entity.RefreshJob{ID: "manual-1", Status: entity.RefreshJobCompleted}, true)
	scheduler.On("Job", "missing").Return(nil, false)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/update/manual-1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var job entity.RefreshJob
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
		assert.Equal(t, entity.RefreshJobCompleted, job.Status)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/update/missing", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
