package http

import (
	"encoding/json"
	"fmt"
)

// InvalidSessionErrorCode is the errorCode Salesforce returns on a 401
// caused by an expired or revoked access token.
const InvalidSessionErrorCode = "INVALID_SESSION_ID"

// APIError is the terminal error for a request: a non-retryable status,
// or a retryable one after the retry budget is exhausted.
type APIError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func newAPIError(resp *Response) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       resp.Body,
	}
}

func (e *APIError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("salesforce API error: %s", e.Status)
	}
	return fmt.Sprintf("salesforce API error: %s: %s", e.Status, string(e.Body))
}

// errorBody is one element of a Salesforce error response. Errors
// arrive either as a bare object or as an array of objects.
type errorBody struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// IsSessionExpired reports whether a 401 body carries the
// INVALID_SESSION_ID error code.
func IsSessionExpired(body []byte) bool {
	for _, code := range errorCodes(body) {
		if code == InvalidSessionErrorCode {
			return true
		}
	}
	return false
}

func errorCodes(body []byte) []string {
	var list []errorBody
	if err := json.Unmarshal(body, &list); err != nil {
		var one errorBody
		if err := json.Unmarshal(body, &one); err != nil {
			return nil
		}
		list = []errorBody{one}
	}
	codes := make([]string, 0, len(list))
	for _, e := range list {
		if e.ErrorCode != "" {
			codes = append(codes, e.ErrorCode)
		}
	}
	return codes
}

// scheduledRetryError carries both the terminal APIError for the
// attempt and the wait override the retry loop should honor (the
// Retry-After header value, or zero after a session refresh). errors.As
// reaches both through Unwrap, so when the retry budget runs out the
// caller still sees the APIError rather than the wait.
type scheduledRetryError struct {
	apiErr *APIError
	after  error
}

func (e *scheduledRetryError) Error() string { return e.apiErr.Error() }

func (e *scheduledRetryError) Unwrap() []error { return []error{e.apiErr, e.after} }
