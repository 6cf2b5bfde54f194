package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/flowpilot/internal/llm"
)

type recordingBackend struct {
	lastTool string
	lastArgs map[string]interface{}
	delay    time.Duration
	result   string
	err      error
}

func (b *recordingBackend) Execute(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	b.lastTool = tool
	b.lastArgs = args
	if b.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(b.delay):
		}
	}
	return b.result, b.err
}

func TestRegistryRoutesByPrefix(t *testing.T) {
	workflow := &recordingBackend{result: "workflow result"}
	catalog := &recordingBackend{result: "catalog result"}

	registry := NewRegistry()
	registry.RegisterBackend("workflow", workflow)
	registry.RegisterBackend("templates", catalog)

	res := registry.Execute(context.Background(),
		llm.ToolCall{ID: "c1", Name: "workflow.create", Arguments: `{"name":"x"}`},
		time.Second)

	require.False(t, res.Failed)
	assert.Equal(t, "workflow result", res.Content)
	assert.Equal(t, "workflow.create", workflow.lastTool)
	assert.Equal(t, "x", workflow.lastArgs["name"])
	assert.Empty(t, catalog.lastTool)
}

func TestRegistryUnknownBackendFails(t *testing.T) {
	registry := NewRegistry()

	res := registry.Execute(context.Background(),
		llm.ToolCall{ID: "c1", Name: "nowhere.noop"}, time.Second)

	assert.True(t, res.Failed)
	assert.Equal(t, "c1", res.ID)
	assert.Contains(t, res.Content, "no backend")
}

func TestRegistryInvalidArgumentsFail(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterBackend("workflow", &recordingBackend{})

	res := registry.Execute(context.Background(),
		llm.ToolCall{ID: "c1", Name: "workflow.create", Arguments: "{broken"}, time.Second)

	assert.True(t, res.Failed)
	assert.Contains(t, res.Content, "invalid tool arguments")
}

func TestRegistryCallWithinBudgetSucceeds(t *testing.T) {
	backend := &recordingBackend{delay: 20 * time.Millisecond, result: "done"}
	registry := NewRegistry()
	registry.RegisterBackend("workflow", backend)

	res := registry.Execute(context.Background(),
		llm.ToolCall{ID: "c1", Name: "workflow.create"}, 200*time.Millisecond)

	assert.False(t, res.Failed)
	assert.Equal(t, "done", res.Content)
}

func TestRegistryTimeoutProducesFailedResult(t *testing.T) {
	backend := &recordingBackend{delay: 500 * time.Millisecond, result: "too late"}
	registry := NewRegistry()
	registry.RegisterBackend("workflow", backend)

	start := time.Now()
	res := registry.Execute(context.Background(),
		llm.ToolCall{ID: "c1", Name: "workflow.create"}, 50*time.Millisecond)

	assert.True(t, res.Failed)
	assert.Equal(t, "c1", res.ID)
	assert.Contains(t, res.Content, "timed out")
	assert.Less(t, time.Since(start), 400*time.Millisecond, "timeout must not wait for the backend")
}

func TestRegistryBackendErrorProducesFailedResult(t *testing.T) {
	backend := &recordingBackend{err: errors.New("catalog unavailable")}
	registry := NewRegistry()
	registry.RegisterBackend("workflow", backend)

	res := registry.Execute(context.Background(),
		llm.ToolCall{ID: "c1", Name: "workflow.create"}, time.Second)

	assert.True(t, res.Failed)
	assert.Contains(t, res.Content, "catalog unavailable")
}

func TestFormatResultTruncatesLongOutput(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'a'
	}

	formatted := FormatResult(Result{Name: "templates.search", Content: string(long)})
	assert.Less(t, len(formatted), 700)
	assert.Contains(t, formatted, "templates.search:")
	assert.Contains(t, formatted, "...")
}

func TestFormatResultEmptyOutput(t *testing.T) {
	formatted := FormatResult(Result{Name: "connectors.lookup", Content: "  "})
	assert.Equal(t, "connectors.lookup: (no output)", formatted)
}

func TestDefaultRegistryCatalogTools(t *testing.T) {
	registry := DefaultRegistry()
	require.True(t, registry.HasTools())
	assert.Len(t, registry.Specs(), 2)

	res := registry.Execute(context.Background(),
		llm.ToolCall{ID: "c1", Name: "templates.search", Arguments: `{"query":"invoice"}`},
		time.Second)
	require.False(t, res.Failed)
	assert.Contains(t, res.Content, "invoice-approval")

	res = registry.Execute(context.Background(),
		llm.ToolCall{ID: "c2", Name: "connectors.lookup", Arguments: `{"name":"slack"}`},
		time.Second)
	require.False(t, res.Failed)
	assert.Contains(t, res.Content, "available")

	res = registry.Execute(context.Background(),
		llm.ToolCall{ID: "c3", Name: "connectors.lookup", Arguments: `{}`},
		time.Second)
	assert.True(t, res.Failed)
}
