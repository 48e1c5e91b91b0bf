package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/repository"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/service"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/ingest/parser"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/ingest/sheets"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/metrics"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/storage"
)

// writeJSON writes data with the given status code. Data that cannot be encoded is
// answered with a 500 envelope before any status is sent.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		buf.Reset()
		statusCode = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(map[string]string{
			"status":  "error",
			"message": "failed to encode response",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"status":  "error",
		"message": message,
	})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrInvalidCompanyInfo),
		errors.Is(err, service.ErrEmptyTable),
		errors.Is(err, parser.ErrEmptyFile),
		errors.Is(err, parser.ErrUnsupportedFormat),
		errors.Is(err, parser.ErrMalformedFile),
		errors.Is(err, metrics.ErrRaggedTable):
		return http.StatusBadRequest
	case errors.Is(err, sheets.ErrEmptySheet):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, storage.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotRefreshable):
		return http.StatusConflict
	case errors.Is(err, service.ErrSheetsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
