package stage

import "github.com/codefionn/flowpilot/internal/llm"

const (
	initialSystemPrompt = `You are an automation workflow design assistant. The user will describe a
process they want to automate. Ask one or two focused clarifying questions
about triggers, inputs and the people involved. Use the available lookup
tools to check which templates and connectors exist before asking.`

	clarifyingSystemPrompt = `You are an automation workflow design assistant gathering requirements.
Based on the conversation so far, either ask a final clarifying question or,
if you have enough detail, present a concise workflow design: a short name,
the ordered steps, and the decision points. Use the available lookup tools to
ground the design in existing templates and connectors.`

	designSystemPrompt = `You are an automation workflow design assistant. A design has been proposed.
Answer follow-up questions about it and refine it when the user asks. Keep
answers short and concrete.`

	diagramSystemPrompt = `You are an automation workflow design assistant. Produce a Mermaid flowchart
of the agreed workflow design. Emit the diagram inside a fenced block marked
mermaid, starting with "graph TD". Node labels must avoid parentheses,
hyphens, colons, commas, ampersands and quotation marks. Add one sentence of
explanation before the block.`

	buildSystemPrompt = `You are an automation workflow design assistant. The workflow has been
diagrammed. Answer questions about the design and tell the user they can
build the workflow document when ready.`

	completeSystemPrompt = `You are an automation workflow design assistant. The workflow document has
been generated. Answer remaining questions; if the user wants changes, help
them refine the design.`
)

// InstructionsFor returns the prompt construction contract for a stage. Tool
// use is mandatory while requirements are being gathered, advisory afterwards;
// the completion layer downgrades the choice when no tools are registered.
func InstructionsFor(s Stage) PromptSpec {
	switch s {
	case Initial:
		return PromptSpec{System: initialSystemPrompt, ToolChoice: llm.ToolChoiceRequired}
	case Clarifying:
		return PromptSpec{System: clarifyingSystemPrompt, ToolChoice: llm.ToolChoiceRequired}
	case DesignProposed:
		return PromptSpec{System: designSystemPrompt, ToolChoice: llm.ToolChoiceAuto}
	case ReadyForDiagram:
		return PromptSpec{System: diagramSystemPrompt, ToolChoice: llm.ToolChoiceAuto}
	case DiagramGenerated:
		return PromptSpec{System: buildSystemPrompt, ToolChoice: llm.ToolChoiceAuto}
	default:
		return PromptSpec{System: completeSystemPrompt, ToolChoice: llm.ToolChoiceAuto}
	}
}
