package sermon

import (
	"errors"
	"fmt"
)

// ErrRecordNotFound covers both a missing processing record and one owned
// by another user; callers cannot tell the two apart.
var ErrRecordNotFound = errors.New("processing record not found")

// InvalidStateError is returned when a pipeline stage is invoked while the
// record is not in that stage's required predecessor state. The record is
// never mutated on this path.
type InvalidStateError struct {
	ProcessingID string
	Expected     string
	Actual       string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("processing %s: expected status %q, got %q", e.ProcessingID, e.Expected, e.Actual)
}

// NotSermonError rejects an upload whose content does not look like a
// sermon. Reason comes from the content validator and is shown to the user.
type NotSermonError struct {
	Reason string
}

func (e *NotSermonError) Error() string {
	if e.Reason == "" {
		return "document does not appear to be a sermon"
	}
	return "document does not appear to be a sermon: " + e.Reason
}
