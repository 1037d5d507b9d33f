package ticket

import (
	"errors"
	"fmt"
)

var (
	ErrSubmitInFlight = errors.New("submission already in flight")
	ErrNoSubmitter    = errors.New("no submitter configured")
	ErrUnknownField   = errors.New("unknown field")
	ErrUnknownPreset  = errors.New("unknown preset")
	ErrUnknownSide    = errors.New("unknown side")
)

// ValidationError reports a field that failed submit-time validation.
type ValidationError struct {
	Field   Field
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SubmissionError is returned by a Submitter when the upstream venue
// rejected the order. Message carries the venue's reason when it supplied
// one.
type SubmissionError struct {
	Message string
}

func (e *SubmissionError) Error() string {
	if e.Message == "" {
		return failureMessage
	}
	return e.Message
}

func asSubmissionError(err error) (*SubmissionError, bool) {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
