package api

import (
	"errors"
	"net/http"

	"rampdash/pkg/rampdash"
)

// errorResponse is the error envelope shared by every endpoint.
type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

// writeCoreError writes a structured error with the HTTP status derived from
// its error code.
func writeCoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	response := errorResponse{Success: false, Error: err.Error()}

	var coreErr *rampdash.Error
	if errors.As(err, &coreErr) {
		status = mapErrorCodeToHTTPStatus(coreErr.Code)
		response.Error = coreErr.Message
		response.ErrorCode = string(coreErr.Code)
	}
	writeJSON(w, status, response)
}

// mapErrorCodeToHTTPStatus maps business error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code rampdash.ErrorCode) int {
	switch code {
	case rampdash.ErrCodeInvalidInput, rampdash.ErrCodeValidation:
		return http.StatusBadRequest
	case rampdash.ErrCodeNotFound:
		return http.StatusNotFound
	case rampdash.ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case rampdash.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case rampdash.ErrCodeUpstream:
		return http.StatusBadGateway
	case rampdash.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
