package runner

import "testing"

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{Unbuilt, SourceCaptured, true},
		{SourceCaptured, PhasesRunning, true},
		{PhasesRunning, SplitDone, true},
		{SplitDone, Assembled, true},

		{Unbuilt, Failed, true},
		{SourceCaptured, Failed, true},
		{PhasesRunning, Failed, true},
		{SplitDone, Failed, true},

		// No skipping forward.
		{Unbuilt, PhasesRunning, false},
		{SourceCaptured, Assembled, false},

		// No leaving a terminal state, and no re-entering PhasesRunning.
		{Failed, PhasesRunning, false},
		{Failed, Unbuilt, false},
		{Assembled, PhasesRunning, false},
		{Assembled, Failed, false},

		// No moving backwards.
		{PhasesRunning, SourceCaptured, false},
	}
	for _, tt := range tests {
		if got := tt.from.canEnter(tt.to); got != tt.ok {
			t.Errorf("%v -> %v = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestStateString(t *testing.T) {
	if Assembled.String() != "assembled" || Failed.String() != "failed" {
		t.Fatal("State.String wrong")
	}
	if !Assembled.Terminal() || !Failed.Terminal() || PhasesRunning.Terminal() {
		t.Fatal("Terminal wrong")
	}
}
