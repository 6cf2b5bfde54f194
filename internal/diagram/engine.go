// Package diagram validates Mermaid flowchart text and auto-corrects failing
// diagrams through the completion provider.
package diagram

import (
	"fmt"
	"strings"
)

// Engine renders diagram-description text, or fails with a syntax diagnostic.
// The real rendering engine lives outside this process; SyntaxEngine is the
// built-in implementation used when no external engine is configured.
type Engine interface {
	Render(diagramText string) error
}

// forbiddenLabelChars are the structural punctuation characters the rendering
// grammar cannot parse inside node labels.
var forbiddenLabelChars = []rune{'(', ')', '-', ':', ',', '&', '"'}

// SyntaxEngine checks Mermaid flowchart syntax without producing an image.
// It accepts the subset of the grammar this assistant emits: a graph header
// followed by node and edge lines with bracketed labels.
type SyntaxEngine struct{}

// NewSyntaxEngine creates the built-in syntax checking engine
func NewSyntaxEngine() *SyntaxEngine {
	return &SyntaxEngine{}
}

func (e *SyntaxEngine) Render(diagramText string) error {
	lines := strings.Split(strings.TrimSpace(diagramText), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return fmt.Errorf("empty diagram")
	}

	header := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(header, "graph ") && !strings.HasPrefix(header, "flowchart ") {
		return fmt.Errorf("line 1: expected graph or flowchart header, got %q", header)
	}

	for i, line := range lines[1:] {
		if err := checkLine(line); err != nil {
			return fmt.Errorf("line %d: %w", i+2, err)
		}
	}

	return nil
}

// checkLine verifies bracket balance and label contents for one diagram line.
func checkLine(line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "%%") {
		return nil
	}

	depth := 0
	var label strings.Builder
	for _, r := range trimmed {
		switch r {
		case '[':
			depth++
			if depth > 1 {
				return fmt.Errorf("nested bracket in %q", trimmed)
			}
		case ']':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced bracket in %q", trimmed)
			}
			if err := checkLabel(label.String()); err != nil {
				return err
			}
			label.Reset()
		default:
			if depth > 0 {
				label.WriteRune(r)
			}
		}
	}

	if depth != 0 {
		return fmt.Errorf("unterminated label in %q", trimmed)
	}

	return nil
}

func checkLabel(label string) error {
	for _, r := range label {
		for _, forbidden := range forbiddenLabelChars {
			if r == forbidden {
				return fmt.Errorf("unsupported character %q in node label %q", string(r), label)
			}
		}
	}
	return nil
}
