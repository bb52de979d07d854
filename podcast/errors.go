package podcast

import (
	"errors"
	"fmt"
)

// Common errors for the generation pipeline.
var (
	// Provider failure classes. Provider implementations wrap one of these
	// three; nothing above the generation client ever sees a provider-specific
	// error code.
	ErrTransient      = errors.New("transient provider failure")
	ErrQuotaExceeded  = errors.New("provider quota exceeded for credential")
	ErrInvalidRequest = errors.New("invalid generation request")

	// Pipeline errors
	ErrPoolExhausted = errors.New("all credentials exhausted")
	ErrUnknownEffect = errors.New("effect has no prompt in library and no override")
	ErrNoCues        = errors.New("script produced no cues")
	ErrRender        = errors.New("timeline render failed")
)

// RetryExhaustedError reports that one credential's transient attempt budget
// was spent without a success.
type RetryExhaustedError struct {
	Attempts int   // Provider calls made before giving up
	Err      error // Last provider failure
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%d attempts: %v", e.Attempts, e.Err)
}

// Unwrap marks the error as transient while keeping the provider failure
// reachable.
func (e *RetryExhaustedError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

// GenerationError reports a failed generation attempt for one cue.
type GenerationError struct {
	Err      error // One of the failure classes above
	CueIndex int   // Index of the offending cue in program order
	Attempts int   // Provider calls made before giving up; 0 when not applicable
}

// NewGenerationError wraps a failure with its cue position, lifting the
// attempt count out of an exhausted retry budget when there is one.
func NewGenerationError(err error, cueIndex int) *GenerationError {
	ge := &GenerationError{Err: err, CueIndex: cueIndex}
	var re *RetryExhaustedError
	if errors.As(err, &re) {
		ge.Attempts = re.Attempts
	}
	return ge
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("cue %d: %v", e.CueIndex, e.Err)
}

// Unwrap returns the underlying failure class.
func (e *GenerationError) Unwrap() error {
	return e.Err
}
