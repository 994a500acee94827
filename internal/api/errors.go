package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps a classified error to an HTTP response, exposing the
// message without the wrapped cause chain.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	httpError(w, statusFor(kind), string(kind), "%s", apperr.Message(err))
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConfiguration:
		return http.StatusUnprocessableEntity
	case apperr.KindNotSupported:
		return http.StatusNotImplemented
	case apperr.KindTransport, apperr.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
