package orchestrator

// State is the lifecycle position of one orchestration run.
type State string

const (
	StateInit         State = "INIT"
	StateSegmenting   State = "SEGMENTING"
	StateTranscribing State = "TRANSCRIBING"
	StateMerging      State = "MERGING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

var transitions = map[State][]State{
	StateInit:         {StateSegmenting, StateTranscribing, StateFailed},
	StateSegmenting:   {StateTranscribing, StateFailed},
	StateTranscribing: {StateMerging, StateDone, StateFailed},
	StateMerging:      {StateDone, StateFailed},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
