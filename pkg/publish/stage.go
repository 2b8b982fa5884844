package publish

import (
	"fmt"
	"strings"
)

// Stage is a step of publishing one coordinate.
type Stage int

const (
	StageStart Stage = iota
	StageInstall
	StageReindex
	StageSpec
	StageHashDiscovery
	StagePush
	StageIndexUpdate
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageStart:         "Start",
	StageInstall:       "Install",
	StageReindex:       "Reindex",
	StageSpec:          "Spec",
	StageHashDiscovery: "HashDiscovery",
	StagePush:          "Push",
	StageIndexUpdate:   "IndexUpdate",
	StageDone:          "Done",
	StageFailed:        "Failed",
}

func (s Stage) String() string {
	if s < StageStart || s > StageFailed {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	for i, name := range stageNames {
		if strings.EqualFold(name, string(text)) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// next lists the allowed transitions. Install, Spec, HashDiscovery and Push
// may fail terminally; Reindex and IndexUpdate only ever warn. Start may go
// straight to Reindex when the install step is skipped. Any stage may fail
// when the run is interrupted.
var next = map[Stage][]Stage{
	StageStart:         {StageInstall, StageReindex},
	StageInstall:       {StageReindex},
	StageReindex:       {StageSpec},
	StageSpec:          {StageHashDiscovery},
	StageHashDiscovery: {StagePush},
	StagePush:          {StageIndexUpdate},
	StageIndexUpdate:   {StageDone},
}

func isAllowedTransition(from, to Stage) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Run is the transient state of one publish attempt. It is created per
// coordinate and discarded afterwards.
type Run struct {
	Stage          Stage
	PushedCount    int
	PresentCount   int
	AlreadyInCache bool

	completed []Stage
}

// advance moves to the next stage, recording the current one as completed
// unless the run is failing.
func (r *Run) advance(to Stage) error {
	if !isAllowedTransition(r.Stage, to) {
		return fmt.Errorf("disallowed publish transition %s -> %s", r.Stage, to)
	}
	if to != StageFailed && r.Stage != StageStart {
		r.completed = append(r.completed, r.Stage)
	}
	r.Stage = to
	return nil
}

// Completed returns the stages finished so far, in order.
func (r *Run) Completed() []Stage {
	return append([]Stage(nil), r.completed...)
}
