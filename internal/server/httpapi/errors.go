package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/claimgate/internal/common"
)

// Stable error codes returned in the error body.
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeNotFound            = "NOT_FOUND"
	CodeCaptureFailed       = "CAPTURE_FAILED"
	CodeValidation          = "VALIDATION_ERROR"
	CodeEngineUnavailable   = "ENGINE_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorStatus maps a service error to its HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, common.ErrInsufficientCredits):
		return http.StatusPaymentRequired, CodeInsufficientCredits
	case errors.Is(err, common.ErrAccountNotFound):
		return http.StatusNotFound, CodeAccountNotFound
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, common.ErrCaptureFailed):
		return http.StatusInternalServerError, CodeCaptureFailed
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, common.ErrEngineUnavailable):
		return http.StatusServiceUnavailable, CodeEngineUnavailable
	case errors.Is(err, common.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, CodeServiceUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// publicMessage keeps internal detail out of 5xx bodies.
func publicMessage(code string, err error) string {
	switch code {
	case CodeInternal:
		return "internal error"
	case CodeCaptureFailed:
		return "failed to capture memory, no credits were deducted"
	case CodeServiceUnavailable:
		return "service temporarily unavailable, please retry"
	case CodeEngineUnavailable:
		return "engine not available"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: publicMessage(code, err)}})
}
