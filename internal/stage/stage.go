// Package stage holds the conversation stage machine: the enumerated stages
// of the guided design flow, the transition table, and the per-stage prompt
// construction contract.
package stage

import "github.com/codefionn/flowpilot/internal/llm"

// Stage is a discrete phase of the guided conversation. Exactly one stage is
// active per session.
type Stage int

const (
	// Initial is the entry state before the first completion
	Initial Stage = iota
	// Clarifying gathers requirements through follow-up questions
	Clarifying
	// DesignProposed means a workflow design has been presented
	DesignProposed
	// ReadyForDiagram means the user asked for a diagram
	ReadyForDiagram
	// DiagramGenerated means a diagram was detected and rendered
	DiagramGenerated
	// Building means document generation is in progress
	Building
	// Complete is terminal for a design iteration
	Complete
)

// String returns the stage name
func (s Stage) String() string {
	switch s {
	case Initial:
		return "initial"
	case Clarifying:
		return "clarifying"
	case DesignProposed:
		return "design_proposed"
	case ReadyForDiagram:
		return "ready_for_diagram"
	case DiagramGenerated:
		return "diagram_generated"
	case Building:
		return "building"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Outcome is a classified result of a completion call or an explicit user
// action. Transitions are driven only by outcomes, never by pattern-matching
// on raw user input.
type Outcome int

const (
	// OutcomeCompletion is a plain-text completion
	OutcomeCompletion Outcome = iota
	// OutcomeDiagramDetected means the response embeds a diagram block
	OutcomeDiagramDetected
	// OutcomeUserDiagramRequest is the user asking for a diagram
	OutcomeUserDiagramRequest
	// OutcomeUserBuild is the user picking the build action
	OutcomeUserBuild
	// OutcomeDocumentValidated means the generated document passed validation
	OutcomeDocumentValidated
	// OutcomeRequestChanges is the user asking to revise the design
	OutcomeRequestChanges
)

// Advance returns the next stage for the given stage and outcome. It is a
// pure function: identical inputs always yield the identical next stage.
// Unmatched combinations leave the stage unchanged.
func Advance(s Stage, outcome Outcome) Stage {
	if outcome == OutcomeRequestChanges {
		return Clarifying
	}

	switch s {
	case Initial:
		if outcome == OutcomeCompletion {
			return Clarifying
		}
	case Clarifying:
		if outcome == OutcomeCompletion {
			return DesignProposed
		}
	case DesignProposed:
		if outcome == OutcomeUserDiagramRequest {
			return ReadyForDiagram
		}
	case ReadyForDiagram:
		if outcome == OutcomeDiagramDetected {
			return DiagramGenerated
		}
	case DiagramGenerated:
		if outcome == OutcomeUserBuild {
			return Building
		}
	case Building:
		if outcome == OutcomeDocumentValidated {
			return Complete
		}
	}

	return s
}

// Phase is a named failure/retry domain, distinct from Stage. A live retry
// affordance is always tagged with a phase.
type Phase string

const (
	PhaseClarification  Phase = "clarification"
	PhaseDesignProposal Phase = "design_proposal"
	PhaseDiagram        Phase = "diagram"
	PhaseExplanation    Phase = "explanation"
	PhaseBuild          Phase = "build"
	PhaseDownload       Phase = "download"
)

// PhaseFor maps a stage to the retry phase failures in that stage are tagged
// with.
func PhaseFor(s Stage) Phase {
	switch s {
	case Initial, Clarifying:
		return PhaseClarification
	case DesignProposed:
		return PhaseDesignProposal
	case ReadyForDiagram, DiagramGenerated:
		return PhaseDiagram
	case Building:
		return PhaseBuild
	case Complete:
		return PhaseDownload
	default:
		return PhaseExplanation
	}
}

// PromptSpec is the per-stage instruction-construction contract handed to the
// completion layer.
type PromptSpec struct {
	System     string
	ToolChoice llm.ToolChoice
}
