package llm

import "fmt"

// TransportError indicates the provider was unreachable or returned a
// non-success status.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s provider unreachable: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EmptyResponseError indicates the provider call succeeded but yielded no
// usable text or tool calls.
type EmptyResponseError struct {
	Provider string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("%s provider returned an empty response", e.Provider)
}
