package decision

import (
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/veskora/screenpilot/api/schemas"
	"github.com/veskora/screenpilot/internal/perception"
)

// Outcome tags the result of interpreting one decision response. The loop
// branches exhaustively on it, so terminal success, a missing element and
// a parse failure stay distinguishable.
type Outcome string

const (
	// OutcomeAchieved means the model signaled the objective is complete.
	OutcomeAchieved Outcome = "achieved"
	// OutcomeResolved means the chosen label matched a candidate element.
	OutcomeResolved Outcome = "resolved"
	// OutcomeNotFound means the chosen label matched no candidate.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeParseFailed means the response could not be decoded at all.
	OutcomeParseFailed Outcome = "parse_failed"
)

// Resolution is the interpreted decision for one iteration.
type Resolution struct {
	Outcome Outcome
	// Element is set only when Outcome is OutcomeResolved.
	Element *schemas.Element
	// Thought carries the model's rationale; empty when decoding failed.
	Thought string
	// Reason is a human-readable cause for every outcome except resolved.
	Reason string
}

// decisionResponse mirrors the wire format of an action decision reply.
// An empty or absent label is the completion signal.
type decisionResponse struct {
	Thought string `json:"thought"`
	Label   string `json:"label"`
}

// Resolver interprets decision responses against the current candidate set.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a Resolver that logs diagnostics through the given logger.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger.Named("decision")}
}

// Resolve decodes a decision response and maps its label onto the candidate
// elements by exact string match, first match in discovery order. It never
// panics; an undecodable response yields OutcomeParseFailed, which the loop
// treats as "cannot proceed" rather than success.
func (r *Resolver) Resolve(raw string, candidates []schemas.Element) Resolution {
	extracted := perception.ExtractJSON(raw)

	var payload decisionResponse
	if err := json.Unmarshal([]byte(extracted), &payload); err != nil {
		r.logger.Warn("Failed to unmarshal decision response",
			zap.String("raw_response", raw),
			zap.String("extracted_json", extracted),
			zap.Error(err))
		return Resolution{Outcome: OutcomeParseFailed, Reason: "could not parse decision response"}
	}

	if payload.Label == "" {
		return Resolution{Outcome: OutcomeAchieved, Thought: payload.Thought, Reason: "objective achieved"}
	}

	for i := range candidates {
		if candidates[i].Label == payload.Label {
			return Resolution{Outcome: OutcomeResolved, Element: &candidates[i], Thought: payload.Thought}
		}
	}

	r.logger.Warn("Decision referenced an element that was not discovered",
		zap.String("label", payload.Label),
		zap.Int("candidate_count", len(candidates)))
	return Resolution{Outcome: OutcomeNotFound, Thought: payload.Thought, Reason: "chosen element not found"}
}
