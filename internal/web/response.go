// Package web holds the JSON response conventions shared by the store's
// HTTP handlers.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/myhmtk/storefront/internal/domain"
	"github.com/myhmtk/storefront/internal/payment"
)

// Envelope is embedded in every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func OK(message string) Envelope {
	return Envelope{Success: true, Message: message}
}

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteMessage(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, Envelope{Success: status < 400, Message: message})
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, message := ErrorStatus(logger, err)
	WriteMessage(w, logger, status, message)
}

// ErrorStatus maps err to a status code and client-facing message.
// Unclassified errors are logged and reported as 500 without leaking their
// text.
func ErrorStatus(logger *slog.Logger, err error) (int, string) {
	var (
		gwErr *payment.GatewayError
		verrs validator.ValidationErrors
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrEmptyCheckout):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.As(err, &verrs):
		return http.StatusBadRequest, describe(verrs)
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &gwErr):
		return http.StatusBadGateway, gwErr.Error()
	}
	logger.Error("request failed", "error", err)
	return http.StatusInternalServerError, "internal server error"
}

// PathID parses a positive integer path value.
func PathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrValidation, name, raw)
	}
	return id, nil
}

// DecodeJSON rejects unknown fields so typos in partial updates are not
// silently ignored.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}
