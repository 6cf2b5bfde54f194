package docgen

import (
	"encoding/json"
	"fmt"
)

// SchemaError reports a candidate document that is not a valid workflow
// document. Kind distinguishes malformed JSON from a wrong shape.
type SchemaError struct {
	Kind   string // "parse" or "shape"
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("document %s error: %s", e.Kind, e.Reason)
}

// requiredKeys are the top-level fields every workflow document must carry.
var requiredKeys = []string{"name", "nodes", "connections"}

// Validator structurally validates a candidate document against the minimal
// required shape. Validity is all-or-nothing; there is no partial acceptance.
type Validator struct{}

// NewValidator creates a schema validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate parses candidate as JSON and checks the required shape: the
// top-level keys name, nodes and connections must be present, and nodes must
// be an array.
func (v *Validator) Validate(candidate []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(candidate, &doc); err != nil {
		return nil, &SchemaError{Kind: "parse", Reason: err.Error()}
	}

	for _, key := range requiredKeys {
		if _, ok := doc[key]; !ok {
			return nil, &SchemaError{Kind: "shape", Reason: fmt.Sprintf("missing required field %q", key)}
		}
	}

	if _, ok := doc["nodes"].([]interface{}); !ok {
		return nil, &SchemaError{Kind: "shape", Reason: "field \"nodes\" must be an array"}
	}

	return doc, nil
}
