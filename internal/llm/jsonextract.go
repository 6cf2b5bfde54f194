package llm

import (
	"encoding/json"
	"strings"
)

// CleanJSONResponse removes common formatting from provider JSON output:
// markdown code fences (```json or ```) and surrounding whitespace.
func CleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// ExtractJSONObject locates the JSON object embedded in a provider response.
// It tries the cleaned response as-is, then falls back to the substring
// between the first '{' and the last '}'. Providers routinely wrap output in
// commentary or fences; both strategies tolerate that.
func ExtractJSONObject(response string) ([]byte, error) {
	cleaned := CleanJSONResponse(response)
	if json.Valid([]byte(cleaned)) && strings.HasPrefix(cleaned, "{") {
		return []byte(cleaned), nil
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		snippet := response[start : end+1]
		if json.Valid([]byte(snippet)) {
			return []byte(snippet), nil
		}
	}

	return nil, &JSONParseError{Response: response, Message: "could not locate JSON object"}
}

// JSONParseError reports a provider response that could not be parsed as JSON.
type JSONParseError struct {
	Response string
	Message  string
}

func (e *JSONParseError) Error() string {
	return e.Message + ": " + TruncateForError(e.Response, 200)
}

// TruncateForError truncates a string for error messages.
func TruncateForError(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit]) + "..."
}
