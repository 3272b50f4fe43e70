package handler

import (
	"net/http"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// TransactionHandler регистрирует платежи до прихода вебхуков провайдера
type TransactionHandler struct {
	transactionService service.TransactionServiceInterface
	validator          *validator.Validate
}

func NewTransactionHandler(transactionService service.TransactionServiceInterface) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		validator:          validator.New(),
	}
}

// CreateTransaction - POST /transactions
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req entity.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return
	}

	tx, err := h.transactionService.Create(c.Request.Context(), &req, userID.(string))
	if err != nil {
		respondError(c, err, "Failed to create transaction")
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// GetTransaction - GET /transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	tx, err := h.transactionService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get transaction")
		return
	}

	c.JSON(http.StatusOK, tx)
}
