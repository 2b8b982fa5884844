package spack

import (
	"errors"
	"fmt"
	"strings"
)

// CommandError is a spack invocation that exited non-zero.
type CommandError struct {
	Args     []string
	ExitCode int
	LogPath  string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("`spack %s` exited with code %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.LogPath != "" {
		msg += ", output in " + e.LogPath
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// LogPath returns the log file of the innermost spack invocation in err's
// chain, or the empty string.
func LogPath(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.LogPath
	}
	return ""
}
