// Package apperr classifies the errors that cross component boundaries.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrOutOfStock       = errors.New("insufficient stock")
	ErrValidation       = errors.New("validation failed")
	ErrTurnInProgress   = errors.New("turn already in progress")
	ErrDuplicateMessage = errors.New("duplicate message")
)

// Kind returns a short, stable label for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"

	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"

	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"

	case errors.Is(err, ErrValidation):
		return "validation"

	case errors.Is(err, ErrTurnInProgress):
		return "turn_in_progress"

	case errors.Is(err, ErrDuplicateMessage):
		return "duplicate_message"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrOrderNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest

	case errors.Is(err, ErrOutOfStock),
		errors.Is(err, ErrTurnInProgress):
		return http.StatusConflict

	case errors.Is(err, ErrDuplicateMessage):
		return http.StatusOK

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, context.Canceled):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
