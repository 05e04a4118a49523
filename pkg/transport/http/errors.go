package http

import (
	"encoding/json"
	"net/http"

	"github.com/unichat-ai/unichat/pkg/api"
)

// statusFromError maps an APIError type to the corresponding HTTP status
// code. Transport-level errors (body too large, unsupported content type)
// are handled separately by the handler.
func statusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	case api.ErrorTypeBackendError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response using the ErrorResponse wrapper
// format from pkg/api, with an explicit status code.
func writeError(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// writeAPIError writes an APIError response, deriving the HTTP status
// code from the error type.
func writeAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	writeError(w, apiErr, statusFromError(apiErr))
}
