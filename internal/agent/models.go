package agent

import (
	"fmt"
)

// RunState represents the loop's current phase within its capture, discover,
// decide, act cycle, plus the three distinct ways a run can end.
type RunState string

const (
	StateStarting        RunState = "STARTING"         // The run is recording the objective and waiting for the operator.
	StateCapturing       RunState = "CAPTURING"        // The agent is taking a screenshot of the current screen.
	StateDiscovering     RunState = "DISCOVERING"      // The vision model is identifying interactive elements.
	StateDeciding        RunState = "DECIDING"         // The model is choosing the next element to act on.
	StateActing          RunState = "ACTING"           // The agent is clicking or typing on the chosen element.
	StateDone            RunState = "DONE"             // The model signaled the objective is achieved.
	StateAborted         RunState = "ABORTED"          // The run hit an unrecoverable condition and stopped.
	StateBudgetExhausted RunState = "BUDGET_EXHAUSTED" // The iteration ceiling was reached without completion.
)

// Terminal reports whether the state ends a run.
func (s RunState) Terminal() bool {
	switch s {
	case StateDone, StateAborted, StateBudgetExhausted:
		return true
	}
	return false
}

// HistoryEntry records one completed iteration as an immutable value. Entries
// are rendered into every subsequent prompt, so the wording doubles as the
// model's memory of its own past actions.
type HistoryEntry struct {
	Iteration int    `json:"iteration"` // 1-based loop iteration that produced the entry.
	Action    string `json:"action"`    // Human-readable description of what was performed.
	Thought   string `json:"thought"`   // The model's rationale for the decision.
}

// String renders the entry the way it is replayed into prompts.
func (e HistoryEntry) String() string {
	return fmt.Sprintf("Iteration %d: %s Thought: %s", e.Iteration, e.Action, e.Thought)
}

// Transcript is the run's only persisted memory. The objective is a dedicated
// field rather than a list entry, so "the objective is always first" holds
// structurally; the tail is append-only and never reordered.
type Transcript struct {
	objective string
	entries   []HistoryEntry
}

// NewTranscript starts a transcript for the given objective.
func NewTranscript(objective string) *Transcript {
	return &Transcript{objective: objective}
}

// Objective returns the user's stated goal for the run.
func (t *Transcript) Objective() string {
	return t.objective
}

// Append records one completed iteration at the end of the transcript.
func (t *Transcript) Append(entry HistoryEntry) {
	t.entries = append(t.entries, entry)
}

// Len returns the number of recorded iterations, not counting the objective.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the recorded iterations in append order.
func (t *Transcript) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lines renders the full replayable history, objective first, exactly as it
// is embedded into every prompt.
func (t *Transcript) Lines() []string {
	lines := make([]string, 0, len(t.entries)+1)
	lines = append(lines, "Objective: "+t.objective)
	for _, entry := range t.entries {
		lines = append(lines, entry.String())
	}
	return lines
}

// RunResult is the final outcome of one agent run.
type RunResult struct {
	RunID      string      // Short identifier correlating logs and artifacts.
	Outcome    RunState    // One of StateDone, StateAborted, StateBudgetExhausted.
	Reason     string      // Human-readable cause for the terminal state.
	Iterations int         // Number of capture cycles performed.
	Transcript *Transcript // Full history of the run for reporting.
}
