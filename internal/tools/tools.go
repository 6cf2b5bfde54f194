// Package tools routes tool invocations requested by the completion provider
// to named backends and executes them under per-call budgets.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/flowpilot/internal/llm"
	"github.com/codefionn/flowpilot/internal/logger"
)

// Backend executes named, argument-bearing operations. Tool names are
// dot-qualified; the prefix before the first dot selects the backend.
type Backend interface {
	Execute(ctx context.Context, tool string, args map[string]interface{}) (string, error)
}

// ExecutionError reports a single failed tool call. It never aborts the
// round; the failure is folded into the result record instead.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Result is the outcome record of one tool invocation. Every invocation
// produces exactly one result, matched by ID, even when it times out or
// errors, so a follow-up completion call is never blocked by one bad tool.
type Result struct {
	ID      string
	Name    string
	Content string
	Failed  bool
}

// Registry manages tool declarations and their backends
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	specs    []llm.ToolSpec
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// RegisterBackend routes tool names with the given dot prefix to backend
func (r *Registry) RegisterBackend(prefix string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[prefix] = backend
}

// Declare adds a tool declaration exposed to the completion provider
func (r *Registry) Declare(spec llm.ToolSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = append(r.specs, spec)
}

// Specs returns the declared tool schema
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]llm.ToolSpec(nil), r.specs...)
}

// HasTools reports whether any tools are declared
func (r *Registry) HasTools() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs) > 0
}

// Execute runs one tool call against its backend under the given timeout.
// The backend runs in its own goroutine so a stuck tool cannot block the
// round past its budget.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall, timeout time.Duration) Result {
	backend, ok := r.backendFor(call.Name)
	if !ok {
		return failedResult(call, fmt.Errorf("no backend registered for tool %q", call.Name))
	}

	var args map[string]interface{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return failedResult(call, fmt.Errorf("invalid tool arguments: %w", err))
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		content, err := backend.Execute(execCtx, call.Name, args)
		done <- outcome{content: content, err: err}
	}()

	select {
	case <-execCtx.Done():
		logger.Warn("tool %s exceeded its %s budget", call.Name, timeout)
		return failedResult(call, fmt.Errorf("timed out after %s", timeout))
	case out := <-done:
		if out.err != nil {
			return failedResult(call, out.err)
		}
		return Result{ID: call.ID, Name: call.Name, Content: out.content}
	}
}

func (r *Registry) backendFor(toolName string) (Backend, bool) {
	prefix := toolName
	if idx := strings.IndexByte(toolName, '.'); idx >= 0 {
		prefix = toolName[:idx]
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[prefix]
	return backend, ok
}

func failedResult(call llm.ToolCall, err error) Result {
	execErr := &ExecutionError{Tool: call.Name, Err: err}
	logger.Warn("%v", execErr)
	return Result{
		ID:      call.ID,
		Name:    call.Name,
		Content: "Error: " + err.Error(),
		Failed:  true,
	}
}

// FormatResult renders a result as compact human-readable text for the
// follow-up completion call. The provider never receives a raw, oversized
// structured payload.
func FormatResult(res Result) string {
	content := strings.TrimSpace(res.Content)
	if len(content) > 600 {
		content = content[:600] + "..."
	}
	if content == "" {
		content = "(no output)"
	}
	return fmt.Sprintf("%s: %s", res.Name, content)
}
