// Package agent drives a bounded capture, discover, decide, act loop that
// steers a desktop session toward a user-stated objective.
package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veskora/screenpilot/api/schemas"
	"github.com/veskora/screenpilot/internal/config"
	"github.com/veskora/screenpilot/internal/decision"
	"github.com/veskora/screenpilot/internal/perception"
	"github.com/veskora/screenpilot/internal/prompt"
)

// Agent owns one run of the loop. It is strictly sequential: every
// iteration finishes its capture, two model round-trips and at most one
// action before the next begins, so no internal state needs locking.
type Agent struct {
	cfg      config.AgentConfig
	logger   *zap.Logger
	llm      schemas.LLMClient
	screen   Screen
	input    Input
	text     TextProvider
	parser   *perception.Parser
	resolver *decision.Resolver

	runID string
	state RunState
}

// New assembles an agent from its boundary collaborators. A nil text
// provider falls back to the configured static input text.
func New(cfg config.AgentConfig, logger *zap.Logger, llm schemas.LLMClient, screen Screen, input Input, text TextProvider) *Agent {
	runID := uuid.New().String()[:8]
	logger = logger.Named("agent").With(zap.String("run_id", runID))

	if text == nil {
		text = StaticText{Value: cfg.InputText}
	}

	return &Agent{
		cfg:      cfg,
		logger:   logger,
		llm:      llm,
		screen:   screen,
		input:    input,
		text:     text,
		parser:   perception.NewParser(logger),
		resolver: decision.NewResolver(logger),
		runID:    runID,
		state:    StateStarting,
	}
}

// Run executes the loop until the model reports the objective achieved, an
// unrecoverable condition aborts the run, or the iteration budget runs out.
// Every one of those paths yields a RunResult with a distinct Outcome; the
// error return is reserved for an unusable objective.
func (a *Agent) Run(ctx context.Context, objective string) (*RunResult, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return nil, fmt.Errorf("objective must not be empty")
	}

	transcript := NewTranscript(objective)
	a.setState(StateStarting)
	a.logger.Info("Agent run starting",
		zap.String("objective", objective),
		zap.Int("max_iterations", a.cfg.MaxIterations))

	// Startup settle: give the operator time to bring the target window
	// into focus before the first capture.
	if a.cfg.StartupSettle > 0 {
		a.logger.Info("Focus the target window now",
			zap.Duration("starting_in", a.cfg.StartupSettle))
	}
	if err := a.settle(ctx, a.cfg.StartupSettle); err != nil {
		return a.finish(StateAborted, transcript, 0, "run cancelled"), nil
	}

	for iteration := 1; iteration <= a.cfg.MaxIterations; iteration++ {
		a.logger.Info("Iteration starting",
			zap.Int("iteration", iteration),
			zap.Int("max_iterations", a.cfg.MaxIterations))

		if result := a.runIteration(ctx, iteration, transcript); result != nil {
			return result, nil
		}
	}

	return a.finish(StateBudgetExhausted, transcript, a.cfg.MaxIterations, "budget exhausted"), nil
}

// runIteration performs one full cycle. A nil return means the loop
// continues; a non-nil result terminates the run.
func (a *Agent) runIteration(ctx context.Context, iteration int, transcript *Transcript) *RunResult {
	a.setState(StateCapturing)
	shot, err := a.screen.Capture(ctx)
	if err != nil {
		a.logger.Error("Screen capture failed", zap.Error(err))
		return a.finish(StateAborted, transcript, iteration, a.failureReason(ctx, fmt.Sprintf("screen capture failed: %v", err)))
	}
	size, err := a.screen.Size(ctx)
	if err != nil {
		a.logger.Error("Screen size query failed", zap.Error(err))
		return a.finish(StateAborted, transcript, iteration, a.failureReason(ctx, fmt.Sprintf("screen size query failed: %v", err)))
	}
	a.saveArtifact(shot)

	a.setState(StateDiscovering)
	discoveryReq := prompt.Discovery(transcript.Objective(), transcript.Lines(), size)
	discoveryReq.Image = &schemas.ImageAttachment{MIMEType: "image/png", Data: shot}
	discoveryResp, err := a.generate(ctx, discoveryReq)
	if err != nil {
		a.logger.Error("Element discovery call failed", zap.Error(err))
		return a.finish(StateAborted, transcript, iteration, a.failureReason(ctx, fmt.Sprintf("element discovery failed: %v", err)))
	}

	elements, err := a.parser.Parse(discoveryResp, size)
	if err != nil {
		a.logger.Warn("Discovery response was not usable", zap.Error(err))
	}
	if len(elements) == 0 {
		return a.finish(StateAborted, transcript, iteration, "no interactive elements found")
	}
	a.logger.Info("Elements discovered", zap.Int("count", len(elements)))

	a.setState(StateDeciding)
	decisionReq := prompt.Decision(transcript.Objective(), transcript.Lines(), elements)
	decisionResp, err := a.generate(ctx, decisionReq)
	if err != nil {
		a.logger.Error("Action decision call failed", zap.Error(err))
		return a.finish(StateAborted, transcript, iteration, a.failureReason(ctx, fmt.Sprintf("action decision failed: %v", err)))
	}

	res := a.resolver.Resolve(decisionResp, elements)
	switch res.Outcome {
	case decision.OutcomeAchieved:
		a.logger.Info("Objective reported achieved", zap.String("thought", res.Thought))
		return a.finish(StateDone, transcript, iteration, res.Reason)
	case decision.OutcomeParseFailed, decision.OutcomeNotFound:
		// Both mean the loop cannot trust the decision; neither appends
		// a history entry for this iteration.
		return a.finish(StateAborted, transcript, iteration, res.Reason)
	case decision.OutcomeResolved:
		return a.act(ctx, iteration, res, transcript)
	default:
		return a.finish(StateAborted, transcript, iteration, fmt.Sprintf("unexpected decision outcome: %s", res.Outcome))
	}
}

// act performs the resolved action, appends exactly one history entry and
// waits for the UI to settle. A nil return continues the loop.
func (a *Agent) act(ctx context.Context, iteration int, res decision.Resolution, transcript *Transcript) *RunResult {
	a.setState(StateActing)
	element := *res.Element

	var description string
	switch {
	case !element.Actionable():
		a.logger.Warn("Chosen element has no usable coordinates, skipping",
			zap.String("label", element.Label))
		description = fmt.Sprintf("skipped '%s' (no usable coordinates).", element.Label)

	case element.Kind == schemas.KindButton || element.Kind == schemas.KindLink:
		x, y := element.PixelBox.Center()
		if err := a.input.ClickAt(ctx, x, y); err != nil {
			a.logger.Error("Click failed", zap.String("label", element.Label), zap.Error(err))
			return a.finish(StateAborted, transcript, iteration, a.failureReason(ctx, fmt.Sprintf("click on '%s' failed: %v", element.Label, err)))
		}
		a.logger.Info("Clicked element", zap.String("label", element.Label), zap.Int("x", x), zap.Int("y", y))
		description = fmt.Sprintf("clicked '%s'.", element.Label)

	case element.Kind == schemas.KindInput:
		x, y := element.PixelBox.Center()
		text := a.text.TextFor(element)
		if err := a.input.ClickAt(ctx, x, y); err != nil {
			a.logger.Error("Focus click failed", zap.String("label", element.Label), zap.Error(err))
			return a.finish(StateAborted, transcript, iteration, a.failureReason(ctx, fmt.Sprintf("click on '%s' failed: %v", element.Label, err)))
		}
		if err := a.input.TypeText(ctx, text); err != nil {
			a.logger.Error("Typing failed", zap.String("label", element.Label), zap.Error(err))
			return a.finish(StateAborted, transcript, iteration, a.failureReason(ctx, fmt.Sprintf("typing into '%s' failed: %v", element.Label, err)))
		}
		a.logger.Info("Typed into element", zap.String("label", element.Label), zap.Int("chars", len(text)))
		description = fmt.Sprintf("typed '%s' into '%s'.", text, element.Label)

	default:
		// Unknown element kinds are a no-op, recorded so the model does
		// not keep choosing the same unusable element.
		a.logger.Warn("Unsupported element kind, skipping",
			zap.String("label", element.Label),
			zap.String("kind", string(element.Kind)))
		description = fmt.Sprintf("skipped '%s' (unsupported element type '%s').", element.Label, element.Kind)
	}

	transcript.Append(HistoryEntry{Iteration: iteration, Action: description, Thought: res.Thought})

	// Action settle: let the UI react before the next capture.
	if err := a.settle(ctx, a.cfg.ActionSettle); err != nil {
		return a.finish(StateAborted, transcript, iteration, "run cancelled")
	}
	return nil
}

// generate wraps a model call with the configured timeout so a stalled
// request cannot hang the loop indefinitely.
func (a *Agent) generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ModelCallTimeout)
	defer cancel()
	return a.llm.Generate(callCtx, req)
}

// saveArtifact writes the most recent capture to the configured path for
// diagnostics. Nothing reads it back; failures only warn.
func (a *Agent) saveArtifact(shot []byte) {
	if a.cfg.ScreenshotPath == "" {
		return
	}
	if err := os.WriteFile(a.cfg.ScreenshotPath, shot, 0o644); err != nil {
		a.logger.Warn("Failed to write screenshot artifact",
			zap.String("path", a.cfg.ScreenshotPath),
			zap.Error(err))
	}
}

// settle pauses for the given duration, returning early only when the run
// context is cancelled.
func (a *Agent) settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// failureReason swaps a boundary failure for the cancellation cause when
// the run context was cancelled, so operator interrupts do not read as
// infrastructure errors.
func (a *Agent) failureReason(ctx context.Context, reason string) string {
	if ctx.Err() != nil {
		return "run cancelled"
	}
	return reason
}

func (a *Agent) setState(next RunState) {
	a.logger.Debug("State transition",
		zap.String("from", string(a.state)),
		zap.String("to", string(next)))
	a.state = next
}

// finish records the terminal state and assembles the run result.
func (a *Agent) finish(state RunState, transcript *Transcript, iterations int, reason string) *RunResult {
	a.setState(state)

	log := a.logger.Info
	if state == StateAborted {
		log = a.logger.Warn
	}
	log("Agent run finished",
		zap.String("outcome", string(state)),
		zap.String("reason", reason),
		zap.Int("iterations", iterations),
		zap.Int("history_entries", transcript.Len()))

	return &RunResult{
		RunID:      a.runID,
		Outcome:    state,
		Reason:     reason,
		Iterations: iterations,
		Transcript: transcript,
	}
}
