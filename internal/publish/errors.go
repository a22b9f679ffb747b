package publish

import (
	"fmt"
	"strings"
	"time"
)

// MissingCredentialsError is returned when a platform's credentials are
// not configured.
type MissingCredentialsError struct {
	Platform  string
	Variables []string
}

func (e *MissingCredentialsError) Error() string {
	if len(e.Variables) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Platform)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Platform, strings.Join(e.Variables, ", "))
}

// PlatformError reports a remote platform rejecting an operation. There
// is no automatic retry; remote state is not rolled back.
type PlatformError struct {
	Platform string
	Op       string
	Err      error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// JobTimeoutError reports a processing job that never reached a terminal
// state within the polling bound.
type JobTimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("video job %s not ready after %s", e.JobID, e.Elapsed)
}
