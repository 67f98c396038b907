package cli

// SilentError wraps an error whose message has already been shown to the
// user; main.go suppresses its duplicate printing but still exits non-zero.
type SilentError struct {
	err error
}

// NewSilentError wraps err.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string {
	return e.err.Error()
}

func (e *SilentError) Unwrap() error {
	return e.err
}
