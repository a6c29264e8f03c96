package session

import (
	"fmt"
	"time"
)

// JobFailedError reports a run the service itself marked failed. It carries
// the raw status payload and whatever stdout diagnostics could be fetched
// before cleanup.
type JobFailedError struct {
	JobName       string
	StatusPayload string // raw status response body
	Diagnostic    string // best-effort stdout log text, may be empty
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobName, e.StatusPayload)
}

// JobTimeoutError reports a run that never reached a terminal state within
// the polling ceiling.
type JobTimeoutError struct {
	JobName    string
	Ceiling    time.Duration
	LastStatus string
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("job %s did not reach a terminal state within %s (last status %q)",
		e.JobName, e.Ceiling, e.LastStatus)
}
