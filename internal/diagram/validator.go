package diagram

import (
	"fmt"

	"github.com/codefionn/flowpilot/internal/logger"
)

// SyntaxError reports a diagram the rendering engine rejected.
type SyntaxError struct {
	Diagnostic string
}

func (e *SyntaxError) Error() string {
	return "diagram syntax error: " + e.Diagnostic
}

// RenderResult is the uniform outcome of a render attempt.
type RenderResult struct {
	Success    bool
	Diagnostic string
}

// Validator wraps the rendering engine call and classifies the outcome.
// Engine panics and errors are both folded into a diagnostic string, so
// callers see one failure shape regardless of engine internals.
type Validator struct {
	engine Engine
}

// NewValidator creates a validator over the given rendering engine
func NewValidator(engine Engine) *Validator {
	return &Validator{engine: engine}
}

// Render attempts to render diagramText and classifies the result.
func (v *Validator) Render(diagramText string) (result RenderResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("diagram engine panicked: %v", r)
			result = RenderResult{Diagnostic: fmt.Sprintf("rendering engine failure: %v", r)}
		}
	}()

	if err := v.engine.Render(diagramText); err != nil {
		return RenderResult{Diagnostic: err.Error()}
	}

	return RenderResult{Success: true}
}
