package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy. Failures local to one unit of work are logged and converted
// into an empty result; callers match on these with errors.Is.
var (
	ErrFetchFailed      = errors.New("fetch failed")
	ErrParseFailed      = errors.New("parse failed")
	ErrSelector         = errors.New("invalid selector")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrValidationFailed = errors.New("validation failed")
	ErrDuplicate        = errors.New("duplicate article")
)

// FetchError describes a fetch that exhausted its retries.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): status %d", e.URL, e.Attempts, e.StatusCode)
}

// Unwrap exposes both ErrFetchFailed and the last transport error.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetchFailed}
	}
	return []error{ErrFetchFailed, e.Err}
}

// RecordError pairs a rejected record's URL with the reason it was rejected.
type RecordError struct {
	URL string
	Err error
}

// BulkInsertError reports a bulk insert that stored nothing, with per-record
// reasons where the backend knows them.
type BulkInsertError struct {
	Failures []RecordError
	Err      error
}

func (e *BulkInsertError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.URL, f.Err))
	}
	msg := "bulk insert failed"
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(parts) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, "; "))
	}
	return msg
}

// Unwrap exposes the backend error and every per-record error.
func (e *BulkInsertError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
