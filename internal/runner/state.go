package runner

import "fmt"

// State tracks one package build. A build moves strictly forward; once
// Assembled or Failed is reached no further transition is allowed, and a
// retry starts a new build from Unbuilt against a fresh working tree.
type State int

const (
	Unbuilt State = iota
	SourceCaptured
	PhasesRunning
	SplitDone
	Assembled
	Failed
)

func (s State) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case SourceCaptured:
		return "source-captured"
	case PhasesRunning:
		return "phases-running"
	case SplitDone:
		return "split"
	case Assembled:
		return "assembled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == Assembled || s == Failed
}

var next = map[State]State{
	Unbuilt:        SourceCaptured,
	SourceCaptured: PhasesRunning,
	PhasesRunning:  SplitDone,
	SplitDone:      Assembled,
}

// canEnter reports whether the machine may move from s to to: either the
// single forward step, or Failed from any non-terminal state.
func (s State) canEnter(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	return next[s] == to
}
