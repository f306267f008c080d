package docstore

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the document store
type APIError struct {
	StatusCode  int
	MessageCode string
	Message     string
}

func (e *APIError) Error() string {
	if e.MessageCode != "" {
		return fmt.Sprintf("document store error %d %s: %s", e.StatusCode, e.MessageCode, e.Message)
	}
	return fmt.Sprintf("document store error %d: %s", e.StatusCode, e.Message)
}

// NotFound reports whether the store answered 404
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// parseAPIError extracts the store's errorResponse body when present
func parseAPIError(statusCode int, respBody []byte) error {
	var errResp struct {
		ErrorResponse struct {
			StatusCode  int    `json:"statusCode"`
			Status      string `json:"status"`
			MessageCode string `json:"messageCode"`
			Message     string `json:"message"`
		} `json:"errorResponse"`
	}

	apiErr := &APIError{StatusCode: statusCode, Message: http.StatusText(statusCode)}
	if err := json.Unmarshal(respBody, &errResp); err == nil {
		if errResp.ErrorResponse.MessageCode != "" {
			apiErr.MessageCode = errResp.ErrorResponse.MessageCode
		}
		if errResp.ErrorResponse.Message != "" {
			apiErr.Message = errResp.ErrorResponse.Message
		}
	}

	return apiErr
}
