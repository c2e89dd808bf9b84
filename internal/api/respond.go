package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Success: false, Error: msg, Code: code})
}

// fail maps the curator error taxonomy onto HTTP statuses.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case model.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case model.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case model.IsBudgetExceeded(err):
		writeError(w, http.StatusTooManyRequests, "budget_exceeded", err.Error())
	case model.IsExternal(err):
		zap.L().Warn("api: upstream failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, "external_service_error", err.Error())
	default:
		zap.L().Error("api: internal error", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// decode reads a JSON body. Malformed bodies are validation errors.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return model.Validationf("request body larger than %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return model.NewValidationError("request body is required")
		default:
			return model.Validationf("malformed JSON body: %v", err)
		}
	}
	return nil
}

// queryLimit parses the optional limit parameter.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, model.Validationf("limit must be a non-negative integer, got %q", raw)
	}
	return n, nil
}
