// Package prompt renders the two prompt variants of the agent loop. Both
// renders are pure functions of their inputs, so an identical loop state
// always reproduces an identical prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/veskora/screenpilot/api/schemas"
)

const discoverySystemPrompt = `You are the perception component of an autonomous agent that operates a computer through screenshots.
You receive a screenshot of the current screen together with the agent's objective and the actions taken so far.
Identify every interactive UI element (buttons, links, input fields) that is relevant to progressing the objective.

Respond with a single JSON object of the form:
{"elements": [{"label": "<visible text or short description>", "type": "<button|link|input>", "box_2d": [x_min, y_min, x_max, y_max]}]}

Coordinates are normalized to a 0-1000 grid on both axes, independent of the actual screen resolution.
Labels must be distinct enough to tell elements apart; prefer the visible text when present.
Your response must be only the raw JSON object. No prose, no markdown fencing.`

const decisionSystemPrompt = `You are the decision component of an autonomous agent that operates a computer.
Given the objective, the action history and the interactive elements detected on the current screen, choose the single next element to act on.

Respond with a single JSON object of the form:
{"thought": "<one or two sentences explaining the choice>", "label": "<exact label of the chosen element>"}

The label must exactly match one of the detected elements.
If the objective is already achieved and no further action is needed, reply with an empty label: {"thought": "<why the objective is complete>", "label": ""}
Your response must be only the raw JSON object. No prose, no markdown fencing.`

// Discovery renders the element discovery request for the current screen.
// The caller attaches the screenshot; the request routes to the powerful
// tier because it needs vision.
func Discovery(objective string, history []string, size schemas.ScreenSize) schemas.GenerationRequest {
	userPrompt := fmt.Sprintf(`Objective: %s

Screen resolution: %s

Action history (oldest first):
%s

List all interactive elements on the attached screenshot that help progress the objective.`,
		objective, size.String(), renderHistory(history))

	return schemas.GenerationRequest{
		SystemPrompt: discoverySystemPrompt,
		UserPrompt:   userPrompt,
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0.1},
	}
}

// Decision renders the action decision request from the elements found in
// this iteration. Text only, so it routes to the fast tier.
func Decision(objective string, history []string, elements []schemas.Element) schemas.GenerationRequest {
	userPrompt := fmt.Sprintf(`Objective: %s

Action history (oldest first):
%s

Interactive elements detected on the current screen:
%s

Choose the next element to act on, or reply with an empty label if the objective is achieved.`,
		objective, renderHistory(history), renderElements(elements))

	return schemas.GenerationRequest{
		SystemPrompt: decisionSystemPrompt,
		UserPrompt:   userPrompt,
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0.1},
	}
}

// renderHistory joins the replayed history entries, oldest first. The full
// history goes into every prompt; it is the loop's only memory.
func renderHistory(history []string) string {
	if len(history) == 0 {
		return "(none)"
	}
	return strings.Join(history, "\n")
}

// renderElements lists each candidate on its own line in discovery order.
// Elements without a usable box are still listed; the model may reference
// them even though the loop cannot click them.
func renderElements(elements []schemas.Element) string {
	if len(elements) == 0 {
		return "(none)"
	}

	var b strings.Builder
	for i, element := range elements {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- label: %s | type: %s", element.Label, element.Kind)
		if element.Box != nil {
			fmt.Fprintf(&b, " | box_2d: [%g, %g, %g, %g]",
				element.Box[0], element.Box[1], element.Box[2], element.Box[3])
		}
	}
	return b.String()
}
