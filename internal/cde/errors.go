package cde

import "fmt"

// TransportError reports a failed call against the job-execution API:
// either the request never completed, or the service answered with a
// non-2xx status. Calls are not retried at this layer; the error aborts
// whatever lifecycle transition was in flight.
type TransportError struct {
	Op         string // "POST /jobs", "GET /job-runs/42", ...
	StatusCode int    // 0 when the request itself failed
	Body       string // response body excerpt, for operator diagnosis
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }
