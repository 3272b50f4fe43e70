package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
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

func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	}
}

// ===================== CreateTransaction Handler Tests =====================

func TestCreateTransactionHandler_Success(t *testing.T) {
	// Arrange
	router := setupTestRouter()
	txSvc := new(mocks.MockTransactionService)
	h := NewTransactionHandler(txSvc)
	router.POST("/transactions", withUser("payment-service"), h.CreateTransaction)

	created := &entity.Transaction{
		ID:        "tx_1",
		Provider:  "stripe",
		Amount:    decimal.RequireFromString("150.50"),
		Currency:  "USD",
		Status:    entity.TransactionPending,
		CreatedBy: "payment-service",
		CreatedAt: time.Now(),
	}
	txSvc.On("Create", mock.Anything, mock.MatchedBy(func(req *entity.CreateTransactionRequest) bool {
		return req.TransactionID == "tx_1" && req.Amount.Equal(decimal.RequireFromString("150.50"))
	}), "payment-service").Return(created, nil)

	body := []byte(`{"transaction_id":"tx_1","provider":"stripe","amount":"150.50","currency":"USD"}`)

	// Act
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusCreated, w.Code)
	var resp entity.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, entity.TransactionPending, resp.Status)
	txSvc.AssertExpectations(t)
}

func TestCreateTransactionHandler_Unauthenticated(t *testing.T) {
	router := setupTestRouter()
	txSvc := new(mocks.MockTransactionService)
	h := NewTransactionHandler(txSvc)
	router.POST("/transactions", h.CreateTransaction)

	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateTransactionHandler_ValidationFailed(t *testing.T) {
	router := setupTestRouter()
	txSvc := new(mocks.MockTransactionService)
	h := NewTransactionHandler(txSvc)
	router.POST("/transactions", withUser("payment-service"), h.CreateTransaction)

	body := []byte(`{"provider":"stripe","amount":"10","currency":"USD"}`)
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "TransactionID is required", decodeError(t, w))
	txSvc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateTransactionHandler_AlreadyExists(t *testing.T) {
	router := setupTestRouter()
	txSvc := new(mocks.MockTransactionService)
	h := NewTransactionHandler(txSvc)
	router.POST("/transactions", withUser("payment-service"), h.CreateTransaction)

	txSvc.On("Create", mock.Anything, mock.Anything, "payment-service").
		Return(nil, fmt.Errorf("%w: tx_1", service.ErrTransactionExists))

	body := []byte(`{"transaction_id":"tx_1","provider":"stripe","amount":"10","currency":"USD"}`)
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

// ===================== GetTransaction Handler Tests =====================

func TestGetTransactionHandler(t *testing.T) {
	router := setupTestRouter()
	txSvc := new(mocks.MockTransactionService)
	h := NewTransactionHandler(txSvc)
	router.GET("/transactions/:id", h.GetTransaction)

	txSvc.On("Get", mock.Anything, "tx_1").Return(&entity.Transaction{ID: "tx_1", Status: entity.TransactionValidated}, nil)
	txSvc.On("Get", mock.Anything, "tx_2").Return(nil, service.ErrNotFound)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions/tx_1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions/tx_2", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
