package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRateUnavailable   = errors.New("exchange rate temporarily unavailable")
	ErrJobNotFound       = errors.New("update job not found")
	ErrUnknownProvider   = errors.New("unknown webhook provider")
	ErrSignature         = errors.New("invalid webhook signature")
	ErrMalformedEvent    = errors.New("malformed webhook event")
	ErrUnsupportedEvent  = errors.New("unsupported webhook event type")
	ErrEventExpired      = errors.New("webhook event outside replay window")
	ErrDuplicate         = errors.New("duplicate webhook event")
	ErrRetryLater        = errors.New("webhook target not ready, retry later")
	ErrRejected          = errors.New("webhook event rejected")
	ErrTransactionExists = errors.New("transaction already exists")
)

// ValidationError - некорректный ввод, отдается клиенту как 400
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation - проверка через errors.As для handler слоя
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
