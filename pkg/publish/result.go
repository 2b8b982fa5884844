package publish

import (
	"time"

	"github.com/daq-spack/bcpub/pkg/coordinate"
	"github.com/daq-spack/bcpub/pkg/errors"
)

// Result reports one publish attempt.
type Result struct {
	Coordinate      coordinate.Coordinate `json:"coordinate"`
	Bucket          string                `json:"bucket,omitempty"`
	StagesCompleted []Stage               `json:"stages_completed"`
	PushedCount     int                   `json:"pushed_count"`
	PresentCount    int                   `json:"present_count"`
	AlreadyCached   bool                  `json:"already_cached"`
	Selected        string                `json:"selected_hash,omitempty"`
	Ambiguous       bool                  `json:"ambiguous,omitempty"`
	SpecFile        string                `json:"spec_file,omitempty"`
	HashFile        string                `json:"hash_file,omitempty"`
	Warnings        []string              `json:"warnings,omitempty"`
	Err             *errors.StageError    `json:"-"`
	Duration        time.Duration         `json:"duration_ns"`
}

func (r Result) OK() bool {
	return r.Err == nil
}

// ErrorKind is the error code of a failed result, or the empty string.
func (r Result) ErrorKind() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Code()
}

// FailedStage is the stage that failed, or the empty string.
func (r Result) FailedStage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Stage
}
