package segment

import (
	"errors"
	"fmt"
)

// Structural errors abort the stream; they are the only error class
// the core returns from processing a message (SPEC_FULL.md §7). All
// other anomalies are reported as segment variants or logged and
// skipped.
var (
	ErrMissingType      = errors.New("segment: message missing type field")
	ErrMissingTimestamp = errors.New("segment: message missing timestamp")
	ErrUnsorted         = errors.New("segment: input stream is not sorted by timestamp")
)

// unsortedError wraps ErrUnsorted with the offending timestamps so
// callers can log a useful diagnostic while still matching with
// errors.Is(err, ErrUnsorted).
type unsortedError struct {
	msgID          string
	prev, received string
}

func (e *unsortedError) Error() string {
	return fmt.Sprintf("segment: message %s timestamp %s precedes previous timestamp %s", e.msgID, e.received, e.prev)
}

func (e *unsortedError) Unwrap() error {
	return ErrUnsorted
}
