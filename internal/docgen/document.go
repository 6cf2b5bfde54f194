// Package docgen produces a validated workflow document from the design
// transcript via the structured-document provider.
package docgen

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Artifact is a workflow document that has passed schema validation and is
// ready for delivery to the user. Once downloaded it is read-only.
type Artifact struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Document    map[string]interface{} `json:"document"`
	Raw         json.RawMessage        `json:"raw"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// newArtifact wraps a validated document value as an Artifact.
func newArtifact(raw []byte, doc map[string]interface{}) *Artifact {
	name, _ := doc["name"].(string)
	return &Artifact{
		ID:          uuid.NewString(),
		Name:        name,
		Document:    doc,
		Raw:         append(json.RawMessage(nil), raw...),
		GeneratedAt: time.Now(),
	}
}
