package diagram

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/flowpilot/internal/llm"
)

type stubRepairClient struct {
	calls      int
	completeFn func(call int, prompt string) (string, error)
}

func (s *stubRepairClient) Complete(_ context.Context, prompt string) (string, error) {
	s.calls++
	return s.completeFn(s.calls, prompt)
}

func (s *stubRepairClient) CompleteWithRequest(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, errors.New("not used")
}

func (s *stubRepairClient) GetModelName() string { return "stub" }

const brokenDiagram = "graph TD\n    A[Review - Approve] --> B[Done]"
const fixedDiagram = "graph TD\n    A[Review then Approve] --> B[Done]"

func newTestRepairLoop(client llm.Client) *RepairLoop {
	return NewRepairLoop(NewValidator(NewSyntaxEngine()), client)
}

func TestRepairLoopPassesValidDiagramThrough(t *testing.T) {
	client := &stubRepairClient{completeFn: func(int, string) (string, error) {
		t.Fatal("no repair call expected for a valid diagram")
		return "", nil
	}}
	loop := newTestRepairLoop(client)

	out, err := loop.Run(context.Background(), fixedDiagram)
	require.NoError(t, err)
	assert.Equal(t, fixedDiagram, out)
	assert.Equal(t, 0, loop.Attempts())
}

func TestRepairLoopFixesBrokenDiagram(t *testing.T) {
	client := &stubRepairClient{completeFn: func(call int, prompt string) (string, error) {
		assert.Contains(t, prompt, "Review - Approve")
		return fixedDiagram, nil
	}}
	loop := newTestRepairLoop(client)

	out, err := loop.Run(context.Background(), brokenDiagram)
	require.NoError(t, err)
	assert.Equal(t, fixedDiagram, out)
	assert.Equal(t, 1, client.calls)
	// Success resets the lineage counter.
	assert.Equal(t, 0, loop.Attempts())
	assert.Equal(t, StateRendering, loop.State())
}

func TestRepairLoopExhaustsAfterThreeRepairCalls(t *testing.T) {
	client := &stubRepairClient{completeFn: func(int, string) (string, error) {
		return brokenDiagram, nil
	}}
	loop := newTestRepairLoop(client)

	_, err := loop.Run(context.Background(), brokenDiagram)

	var syntaxErr *SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, StateExhausted, loop.State())
}

func TestRepairLoopCountsFailedRepairCalls(t *testing.T) {
	client := &stubRepairClient{completeFn: func(int, string) (string, error) {
		return "", errors.New("provider unavailable")
	}}
	loop := newTestRepairLoop(client)

	_, err := loop.Run(context.Background(), brokenDiagram)

	var syntaxErr *SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
	// Failed repair calls still consume lineage attempts.
	assert.Equal(t, 3, client.calls)
}

func TestRepairLoopStaysExhaustedUntilReset(t *testing.T) {
	client := &stubRepairClient{completeFn: func(int, string) (string, error) {
		return brokenDiagram, nil
	}}
	loop := newTestRepairLoop(client)

	_, err := loop.Run(context.Background(), brokenDiagram)
	require.Error(t, err)
	callsAfterExhaustion := client.calls

	_, err = loop.Run(context.Background(), brokenDiagram)
	require.Error(t, err)
	assert.Equal(t, callsAfterExhaustion, client.calls, "exhausted loop must not issue repair calls")

	loop.Reset()
	assert.Equal(t, 0, loop.Attempts())
	assert.Equal(t, StateRendering, loop.State())

	out, err := loop.Run(context.Background(), fixedDiagram)
	require.NoError(t, err)
	assert.Equal(t, fixedDiagram, out)
}

func TestRepairLoopStripsFencedRepairResponse(t *testing.T) {
	client := &stubRepairClient{completeFn: func(int, string) (string, error) {
		return "```mermaid\n" + fixedDiagram + "\n```", nil
	}}
	loop := newTestRepairLoop(client)

	out, err := loop.Run(context.Background(), brokenDiagram)
	require.NoError(t, err)
	assert.Equal(t, fixedDiagram, out)
}
