package cli

import "errors"

// reportedError is a failure that has already been logged in full. main
// exits non-zero without printing it again.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string {
	return e.err.Error()
}

func (e *reportedError) Unwrap() error {
	return e.err
}

// IsReported reports whether err was already logged by the command.
func IsReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}
