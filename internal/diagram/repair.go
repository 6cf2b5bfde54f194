package diagram

import (
	"context"
	"fmt"
	"strings"

	"github.com/codefionn/flowpilot/internal/consts"
	"github.com/codefionn/flowpilot/internal/llm"
	"github.com/codefionn/flowpilot/internal/logger"
)

// State is the repair loop state for the current diagram lineage.
type State int

const (
	// StateRendering means the next step is a render attempt
	StateRendering State = iota
	// StateRepairing means a repair completion call is in flight
	StateRepairing
	// StateExhausted means automatic repair gave up; manual retry only
	StateExhausted
)

const repairPromptTemplate = `The following Mermaid diagram fails to render.

Renderer diagnostic:
%s

Failing diagram:
%s

Rewrite the diagram so it renders. Node labels must not contain any of these
characters: parentheses ( ), hyphens -, colons :, commas, ampersands &, or
quotation marks. Substitute them with plain words or spaces, for example:
  Check Status (auto)   ->   Check Status auto
  Review - Approve      ->   Review then Approve
  Dept: Finance         ->   Dept Finance
  Save & Notify         ->   Save and Notify

Respond with only the corrected diagram text. Do not wrap it in a code fence
and do not add commentary.`

// RepairLoop auto-corrects a failing diagram by feeding the renderer
// diagnostic back to the completion provider. The attempt counter belongs to
// the diagram lineage, not to a single call: it persists across Run
// invocations until a success or an explicit manual retry resets it.
type RepairLoop struct {
	validator *Validator
	client    llm.Client
	attempts  int
	state     State
}

// NewRepairLoop creates a repair loop over the validator and repair client
func NewRepairLoop(validator *Validator, client llm.Client) *RepairLoop {
	return &RepairLoop{validator: validator, client: client}
}

// State returns the current loop state
func (l *RepairLoop) State() State {
	return l.state
}

// Attempts returns the repair attempts consumed by the current lineage
func (l *RepairLoop) Attempts() int {
	return l.attempts
}

// Reset clears the lineage counter. Called on success and on manual retry.
func (l *RepairLoop) Reset() {
	l.attempts = 0
	l.state = StateRendering
}

// Run validates diagramText, repairing it up to the lineage bound. On success
// it returns the (possibly corrected) diagram and resets the counter. Once
// the bound is hit the loop reports SyntaxError, enters StateExhausted and
// issues no further automatic repair calls until Reset.
func (l *RepairLoop) Run(ctx context.Context, diagramText string) (string, error) {
	current := diagramText

	for {
		if l.state == StateExhausted {
			return "", &SyntaxError{Diagnostic: "diagram repair attempts exhausted"}
		}

		l.state = StateRendering
		result := l.validator.Render(current)
		if result.Success {
			l.Reset()
			return current, nil
		}

		logger.Info("diagram render failed (lineage attempt %d/%d): %s",
			l.attempts, consts.MaxDiagramRetries, result.Diagnostic)

		if l.attempts >= consts.MaxDiagramRetries {
			l.state = StateExhausted
			return "", &SyntaxError{Diagnostic: result.Diagnostic}
		}

		l.state = StateRepairing
		l.attempts++

		// The repair call carries only the diagnostic and the failing text,
		// never the broader conversation history.
		prompt := fmt.Sprintf(repairPromptTemplate, result.Diagnostic, current)
		repaired, err := l.client.Complete(ctx, prompt)
		if err != nil {
			// A failed repair call still consumes a lineage attempt.
			logger.Warn("diagram repair call failed: %v", err)
			continue
		}

		repaired = stripFence(repaired)
		if strings.TrimSpace(repaired) == "" {
			logger.Warn("diagram repair call returned empty text")
			continue
		}

		current = repaired
	}
}

// stripFence tolerates repair responses that arrive fenced despite the
// instruction not to.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if block, ok := ExtractBlock(trimmed); ok {
		return block
	}
	trimmed = strings.TrimPrefix(trimmed, "```mermaid")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
