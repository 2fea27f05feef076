package pagination

import (
	"fmt"
	"net/http"
)

// RequestError reports a search page that returned a non-2xx status.
type RequestError struct {
	StatusCode int
	Status     string
	URL        string
	Body       []byte
}

func (e *RequestError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("jira search request failed: %s", status)
}
