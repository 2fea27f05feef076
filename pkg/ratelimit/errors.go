package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ResponseError is a failed HTTP response as seen by the rate limit
// classifier. Errors without one carry no response and classify as neither
// primary nor secondary.
type ResponseError struct {
	StatusCode int
	Status     string
	Header     http.Header

	// Message is the top-level error message, typically the "message"
	// field of the GitHub error body.
	Message string

	// Body is the raw response body, if it was read.
	Body []byte
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed (%s): %s", e.statusLine(), e.Message)
	}
	return fmt.Sprintf("request failed (%s)", e.statusLine())
}

// NewResponseError builds a ResponseError from resp and its already-read body.
// The "message" field of a JSON body is lifted into Message.
func NewResponseError(resp *http.Response, body []byte) *ResponseError {
	e := &ResponseError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       body,
	}
	e.Message = bodyMessage(body)
	return e
}

// bodyMessage extracts the "message" string from a JSON error body.
func bodyMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}

// statusLine returns e.g. "403 Forbidden".
func (e *ResponseError) statusLine() string {
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
