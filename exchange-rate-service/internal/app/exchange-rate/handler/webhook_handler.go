package handler

import (
	"errors"
	"io"
	"net/http"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service"
	"fxgate/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	maxWebhookBodyBytes = 1 << 20
	retryAfterSeconds   = "30"
)

// WebhookHandler принимает события платежных провайдеров
type WebhookHandler struct {
	reconciler service.WebhookReconcilerInterface
}

func NewWebhookHandler(reconciler service.WebhookReconcilerInterface) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Receive - POST /webhooks/:provider
// Подпись считается по сырому телу, поэтому тело читается целиком до разбора.
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider := c.Param("provider")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}
	if len(body) > maxWebhookBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
		return
	}

	event, err := h.reconciler.Handle(c.Request.Context(), provider, c.Request.Header, body)
	resp := webhookResponse(event, err)

	switch {
	case err == nil, errors.Is(err, service.ErrDuplicate):
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, service.ErrSignature):
		c.JSON(http.StatusUnauthorized, resp)
	case errors.Is(err, service.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, resp)
	case errors.Is(err, service.ErrMalformedEvent):
		c.JSON(http.StatusBadRequest, resp)
	case errors.Is(err, service.ErrRetryLater):
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusConflict, resp)
	case errors.Is(err, service.ErrUnsupportedEvent),
		errors.Is(err, service.ErrEventExpired),
		errors.Is(err, service.ErrRejected):
		c.JSON(http.StatusUnprocessableEntity, resp)
	default:
		logger.Error().Err(err).Str("provider", provider).Msg("Failed to process webhook")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
	}
}

// GetEvent - GET /webhooks/:provider/events/:id, аудит обработки события
func (h *WebhookHandler) GetEvent(c *gin.Context) {
	event, err := h.reconciler.Lookup(c.Request.Context(), c.Param("provider"), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get webhook event")
		return
	}

	c.JSON(http.StatusOK, event)
}

func webhookResponse(event *entity.WebhookEvent, err error) entity.WebhookResponse {
	if event == nil {
		resp := entity.WebhookResponse{Status: entity.WebhookStatusRejected}
		if err != nil {
			resp.Reason = err.Error()
		}
		return resp
	}

	resp := entity.WebhookResponse{
		EventID:    event.EventID,
		Status:     event.Status,
		Outcome:    event.Outcome,
		Reason:     event.RejectReason,
		RetryLater: event.RetryLater,
	}
	if resp.Reason == "" && err != nil && !errors.Is(err, service.ErrDuplicate) {
		resp.Reason = err.Error()
	}
	return resp
}
