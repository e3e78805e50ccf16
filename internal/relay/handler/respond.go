package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/approval-relay/internal/domain"
	"go.uber.org/zap"
)

// ErrorResponse - единый формат ошибок API
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor - единственное место, где доменные ошибки превращаются в HTTP-коды.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_status"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrAlreadyDecided):
		return http.StatusConflict, "already_decided"
	case errors.Is(err, domain.ErrForwardInProgress):
		return http.StatusConflict, "forward_in_progress"
	case errors.Is(err, domain.ErrForwarding):
		return http.StatusBadGateway, "forwarding_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Детали сбоя хранилища остаются в логах
		logger.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// forwardFailure - 502 с краткой сводкой уже созданной записи
type forwardFailure struct {
	domain.Summary
	LastError *string `json:"lastError"`
	Error     string  `json:"error"`
	Code      string  `json:"code"`
}

func writeForwardFailure(w http.ResponseWriter, rec *domain.ApprovalRequest, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, forwardFailure{
		Summary:   rec.Summary(),
		LastError: rec.LastError,
		Error:     err.Error(),
		Code:      code,
	})
}
