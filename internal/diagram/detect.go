package diagram

import "strings"

const fenceMarker = "```"

// ExtractBlock finds the first fenced mermaid block in a completion response.
// Detecting such a block is the sole mechanism by which a response is
// classified as diagram-bearing.
func ExtractBlock(text string) (string, bool) {
	lower := strings.ToLower(text)
	start := strings.Index(lower, fenceMarker+"mermaid")
	if start < 0 {
		return "", false
	}

	body := text[start+len(fenceMarker+"mermaid"):]
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		body = body[idx+1:]
	}

	end := strings.Index(body, fenceMarker)
	if end < 0 {
		return "", false
	}

	block := strings.TrimSpace(body[:end])
	if block == "" {
		return "", false
	}

	return block, true
}

// ReplaceBlock swaps the first fenced mermaid block in text for repaired.
// When no block is found the text is returned unchanged.
func ReplaceBlock(text, repaired string) string {
	original, ok := ExtractBlock(text)
	if !ok {
		return text
	}
	return strings.Replace(text, original, repaired, 1)
}
