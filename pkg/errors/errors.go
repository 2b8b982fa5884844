package errors

import (
	"errors"
	"fmt"
)

const (
	CodeConfigNotFound      = "CONFIG_NOT_FOUND"
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeUnknownEpoch        = "UNKNOWN_EPOCH"
	CodeInstallFailed       = "INSTALL_FAILED"
	CodeSpecFailed          = "SPEC_FAILED"
	CodeHashDiscoveryFailed = "HASH_DISCOVERY_FAILED"
	CodePushFailed          = "PUSH_FAILED"
	CodeCanceled            = "CANCELED"
)

// Types ////////////////////////////////////////

type CodedError interface {
	Code() string
}

type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string {
	return e.msg
}

func (e *codedError) Code() string {
	return e.code
}

// StageError is a terminal failure of one publish stage for one coordinate.
// Its message names the coordinate, the stage and, when the failing
// subprocess wrote one, the log file holding its output.
type StageError struct {
	Coordinate string
	Stage      string
	ErrCode    string
	LogPath    string
	Err        error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Coordinate, e.Stage)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.LogPath != "" {
		msg += fmt.Sprintf(" (see %s)", e.LogPath)
	}
	return msg
}

func (e *StageError) Code() string {
	return e.ErrCode
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches any other StageError carrying the same code, so callers can
// test errors.Is(err, &StageError{ErrCode: CodePushFailed}).
func (e *StageError) Is(target error) bool {
	t, ok := target.(*StageError)
	if !ok {
		return false
	}
	return t.ErrCode == "" || t.ErrCode == e.ErrCode
}

// Error Creators ///////////////////////////////

// The config file could not be found
func ConfigNotFound(msg string) error {
	return &codedError{
		code: CodeConfigNotFound,
		msg:  msg,
	}
}

// The configuration or a coordinate is missing required fields
func ConfigInvalid(msg string) error {
	return &codedError{
		code: CodeConfigInvalid,
		msg:  msg,
	}
}

// No compiler epoch is known for a compiler
func UnknownEpoch(msg string) error {
	return &codedError{
		code: CodeUnknownEpoch,
		msg:  msg,
	}
}

// Helpers //////////////////////////////////////

func IsConfigNotFound(err error) bool {
	return Code(err) == CodeConfigNotFound
}

func IsConfigInvalid(err error) bool {
	return Code(err) == CodeConfigInvalid
}

func IsUnknownEpoch(err error) bool {
	return Code(err) == CodeUnknownEpoch
}

// Return the error code of the outermost coded error in the chain, or the empty string
func Code(err error) string {
	var cerr CodedError
	if errors.As(err, &cerr) {
		return cerr.Code()
	}
	return ""
}
