package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/flowpilot/internal/config"
	"github.com/codefionn/flowpilot/internal/docgen"
	"github.com/codefionn/flowpilot/internal/llm"
	"github.com/codefionn/flowpilot/internal/snapshot"
	"github.com/codefionn/flowpilot/internal/stage"
	"github.com/codefionn/flowpilot/internal/tools"
)

type scriptStep struct {
	resp *llm.CompletionResponse
	err  error
}

// scriptedClient replays a fixed sequence of completion responses and records
// every request it sees.
type scriptedClient struct {
	mu       sync.Mutex
	steps    []scriptStep
	requests []*llm.CompletionRequest

	// Complete (used by diagram repair) always answers with repairText.
	repairText string
	repairErr  error
	repairs    int

	block       chan struct{} // when set, CompleteWithRequest waits here first
	started     chan struct{} // closed once the first request arrives
	startedOnce sync.Once
}

func (c *scriptedClient) CompleteWithRequest(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if c.started != nil {
		c.startedOnce.Do(func() { close(c.started) })
	}
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	return step.resp, step.err
}

func (c *scriptedClient) Complete(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repairs++
	return c.repairText, c.repairErr
}

func (c *scriptedClient) GetModelName() string { return "scripted" }

func (c *scriptedClient) push(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, scriptStep{resp: &llm.CompletionResponse{Content: content}})
}

func (c *scriptedClient) pushToolCall(call llm.ToolCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, scriptStep{resp: &llm.CompletionResponse{ToolCalls: []llm.ToolCall{call}}})
}

func (c *scriptedClient) pushError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, scriptStep{err: err})
}

type scriptedDocProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
}

func (p *scriptedDocProvider) GenerateDocument(context.Context, string, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	var err error
	if idx < len(p.errs) {
		err = p.errs[idx]
	}
	var resp string
	if idx < len(p.responses) {
		resp = p.responses[idx]
	}
	return resp, err
}

type eventLog struct {
	mu        sync.Mutex
	messages  []string
	diagrams  []string
	artifacts []*docgen.Artifact
	retries   []stage.Phase
}

func (l *eventLog) events() *Events {
	return &Events{
		AssistantMessage: func(text string) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.messages = append(l.messages, text)
		},
		DiagramReady: func(d string) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.diagrams = append(l.diagrams, d)
		},
		ArtifactReady: func(a *docgen.Artifact) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.artifacts = append(l.artifacts, a)
		},
		RetryAvailable: func(phase stage.Phase, _ string) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.retries = append(l.retries, phase)
		},
	}
}

func newTestOrchestrator(client llm.Client, docProvider llm.DocumentProvider, registry *tools.Registry, log *eventLog) *Orchestrator {
	cfg := config.DefaultConfig()
	if registry == nil {
		registry = tools.NewRegistry()
	}
	store := snapshot.NewStore(snapshot.NewMemoryKV())
	orch := New(cfg, client, docProvider, registry, store, log.events())
	orch.SetDocumentDelays(0, 0)
	return orch
}

const goodDiagramReply = "Here is the flow:\n```mermaid\ngraph TD\n    A[Receive Invoice] --> B[Approve]\n```\nDone."

func TestFullDesignFlow(t *testing.T) {
	client := &scriptedClient{repairText: "graph TD\n    A[Receive Invoice] --> B[Check then Approve]"}
	client.push("What should trigger the invoice workflow?")
	client.push("Design: receive invoice, check amount, approve or escalate.")
	// The first diagram carries a hyphenated label the renderer rejects.
	client.push("Here is the flow:\n```mermaid\ngraph TD\n    A[Receive Invoice] --> B[Check - Approve]\n```\nDone.")

	docProvider := &scriptedDocProvider{
		responses: []string{`{"name":"Invoice Approval","nodes":[{"id":"n1"}],"connections":{}}`},
	}
	log := &eventLog{}
	orch := newTestOrchestrator(client, docProvider, nil, log)
	ctx := context.Background()

	require.NoError(t, orch.Submit(ctx, "I want to automate invoice approval"))
	assert.Equal(t, stage.Clarifying, orch.Session().Stage())

	require.NoError(t, orch.Submit(ctx, "Email receipt triggers it, finance approves"))
	assert.Equal(t, stage.DesignProposed, orch.Session().Stage())

	require.NoError(t, orch.RequestDiagram(ctx))
	assert.Equal(t, stage.DiagramGenerated, orch.Session().Stage())
	assert.Equal(t, 1, client.repairs, "one repair call fixes the hyphenated label")
	require.Len(t, log.diagrams, 1)
	assert.Contains(t, log.diagrams[0], "Check then Approve")

	require.NoError(t, orch.Build(ctx))
	assert.Equal(t, stage.Complete, orch.Session().Stage())
	require.Len(t, log.artifacts, 1)
	assert.Equal(t, "Invoice Approval", log.artifacts[0].Name)

	// Six conversational turns: three exchanges, no build turns.
	assert.Len(t, orch.Session().Turns(), 6)
}

func TestSubmitRejectsConcurrentOperations(t *testing.T) {
	client := &scriptedClient{block: make(chan struct{}), started: make(chan struct{})}
	client.push("answer")

	log := &eventLog{}
	orch := newTestOrchestrator(client, &scriptedDocProvider{}, nil, log)

	done := make(chan error, 1)
	go func() {
		done <- orch.Submit(context.Background(), "first")
	}()

	// Wait until the first operation holds the in-flight slot.
	select {
	case <-client.started:
	case <-time.After(time.Second):
		t.Fatal("first operation never reached the provider")
	}

	assert.ErrorIs(t, orch.Submit(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, orch.Build(context.Background()), ErrBusy)

	close(client.block)
	require.NoError(t, <-done)
}

func TestFailedSubmitLeavesHistoryUntouched(t *testing.T) {
	client := &scriptedClient{}
	// All completion retry attempts fail.
	transportErr := &llm.TransportError{Provider: "scripted", Err: errors.New("connection refused")}
	client.pushError(transportErr)
	client.pushError(transportErr)
	client.pushError(transportErr)

	log := &eventLog{}
	orch := newTestOrchestrator(client, &scriptedDocProvider{}, nil, log)

	err := orch.Submit(context.Background(), "automate invoice approval")
	require.Error(t, err)

	assert.Empty(t, orch.Session().Turns(), "failed operation must not append turns")
	assert.Equal(t, stage.Initial, orch.Session().Stage())
	require.Len(t, log.retries, 1)
	assert.Equal(t, stage.PhaseClarification, log.retries[0])

	rc := orch.Session().RetryContext()
	require.NotNil(t, rc)
	assert.Equal(t, "automate invoice approval", rc.LastUserInput)
}

func TestRetryLastReplaysIdenticalInput(t *testing.T) {
	client := &scriptedClient{}
	transportErr := &llm.TransportError{Provider: "scripted", Err: errors.New("connection refused")}
	client.pushError(transportErr)
	client.pushError(transportErr)
	client.pushError(transportErr)
	client.push("What should trigger the workflow?")

	log := &eventLog{}
	orch := newTestOrchestrator(client, &scriptedDocProvider{}, nil, log)
	ctx := context.Background()

	require.Error(t, orch.Submit(ctx, "automate invoice approval"))
	require.NoError(t, orch.RetryLast(ctx))

	// The replayed request carries the identical user input.
	turns := orch.Session().Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "automate invoice approval", turns[0].Text)
	assert.Equal(t, stage.Clarifying, orch.Session().Stage())
	assert.Nil(t, orch.Session().RetryContext())
}

func TestRetryLastWithoutFailure(t *testing.T) {
	orch := newTestOrchestrator(&scriptedClient{}, &scriptedDocProvider{}, nil, &eventLog{})
	assert.ErrorIs(t, orch.RetryLast(context.Background()), ErrNothingToRetry)
}

func TestDiagramRepairExhaustionFailsOperation(t *testing.T) {
	brokenReply := "Flow:\n```mermaid\ngraph TD\n    A[Review - Approve] --> B[Done]\n```"
	client := &scriptedClient{repairText: "graph TD\n    A[Review - Approve] --> B[Done]"}
	client.push(brokenReply)

	log := &eventLog{}
	orch := newTestOrchestrator(client, &scriptedDocProvider{}, nil, log)

	err := orch.Submit(context.Background(), "show me the diagram")
	require.Error(t, err)

	assert.Equal(t, 3, client.repairs, "exactly three automatic repair calls")
	assert.Empty(t, orch.Session().Turns())
	require.Len(t, log.retries, 1)
	assert.Equal(t, stage.PhaseDiagram, log.retries[0])

	// Manual retry starts a fresh lineage with a clean counter.
	client.push(goodDiagramReply)
	require.NoError(t, orch.RetryLast(context.Background()))
	assert.Equal(t, 0, orch.Session().DiagramAttempts())
	require.Len(t, log.diagrams, 1)
}

func TestDiagramRepairRecoversWithinBudget(t *testing.T) {
	brokenReply := "Flow:\n```mermaid\ngraph TD\n    A[Review - Approve] --> B[Done]\n```"
	client := &scriptedClient{repairText: "graph TD\n    A[Review then Approve] --> B[Done]"}
	client.push(brokenReply)

	log := &eventLog{}
	orch := newTestOrchestrator(client, &scriptedDocProvider{}, nil, log)

	require.NoError(t, orch.Submit(context.Background(), "show me the diagram"))
	assert.Equal(t, 1, client.repairs)
	require.Len(t, log.diagrams, 1)
	assert.Contains(t, log.diagrams[0], "Review then Approve")

	// The corrected diagram replaces the broken one in the transcript.
	turns := orch.Session().Turns()
	require.Len(t, turns, 2)
	assert.NotContains(t, turns[1].Text, "Review - Approve")
}

func TestBuildSchemaExhaustionAsksForRephrase(t *testing.T) {
	badDoc := `{"name":"x","nodes":"not-an-array","connections":{}}`
	docProvider := &scriptedDocProvider{responses: []string{badDoc, badDoc, badDoc, badDoc}}

	client := &scriptedClient{}
	log := &eventLog{}
	orch := newTestOrchestrator(client, docProvider, nil, log)
	orch.Session().SetStage(stage.DiagramGenerated)

	require.NoError(t, orch.Build(context.Background()))

	assert.Equal(t, 4, docProvider.calls)
	assert.Equal(t, stage.DiagramGenerated, orch.Session().Stage(), "stage reverts after schema exhaustion")
	assert.Empty(t, log.artifacts)
	require.NotEmpty(t, log.messages)
	assert.Contains(t, log.messages[len(log.messages)-1], "rephras")
}

func TestBuildTransportFailureIsRetryable(t *testing.T) {
	boom := errors.New("document service down")
	docProvider := &scriptedDocProvider{errs: []error{boom, boom, boom, boom}}

	log := &eventLog{}
	orch := newTestOrchestrator(&scriptedClient{}, docProvider, nil, log)
	orch.Session().SetStage(stage.DiagramGenerated)

	err := orch.Build(context.Background())
	require.ErrorIs(t, err, boom)
	require.Len(t, log.retries, 1)
	assert.Equal(t, stage.PhaseBuild, log.retries[0])

	// Retry replays the build.
	docProvider.errs = nil
	docProvider.responses = append(make([]string, docProvider.calls),
		`{"name":"Invoice Approval","nodes":[],"connections":{}}`)
	require.NoError(t, orch.RetryLast(context.Background()))
	require.Len(t, log.artifacts, 1)
	assert.Equal(t, stage.Complete, orch.Session().Stage())
}

func TestToolRoundFeedsResultsBack(t *testing.T) {
	client := &scriptedClient{}
	client.pushToolCall(llm.ToolCall{ID: "t1", Name: "templates.search", Arguments: `{"query":"invoice"}`})
	client.push("Found the invoice-approval template. What varies per invoice?")

	log := &eventLog{}
	orch := newTestOrchestrator(client, &scriptedDocProvider{}, tools.DefaultRegistry(), log)

	require.NoError(t, orch.Submit(context.Background(), "automate invoice approval"))

	require.Len(t, client.requests, 2)
	first := client.requests[0]
	assert.Equal(t, llm.ToolChoiceRequired, first.ToolChoice)
	assert.NotEmpty(t, first.Tools)

	second := client.requests[1]
	var toolMsg *llm.Message
	for _, msg := range second.Messages {
		if msg.Role == "tool" {
			toolMsg = msg
		}
	}
	require.NotNil(t, toolMsg, "tool result must be fed back to the provider")
	assert.Equal(t, "t1", toolMsg.ToolID)
	assert.Contains(t, toolMsg.Content, "invoice-approval")
}

type slowBackend struct {
	delay time.Duration
}

func (b *slowBackend) Execute(ctx context.Context, _ string, _ map[string]interface{}) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(b.delay):
		return "slow result", nil
	}
}

func TestToolTimeoutStillCompletesRound(t *testing.T) {
	registry := tools.NewRegistry()
	registry.RegisterBackend("slow", &slowBackend{delay: 10 * time.Second})
	registry.Declare(llm.ToolSpec{Name: "slow.lookup", Parameters: map[string]interface{}{"type": "object"}})

	client := &scriptedClient{}
	client.pushToolCall(llm.ToolCall{ID: "t1", Name: "slow.lookup", Arguments: `{}`})
	client.push("Proceeding without the lookup.")

	log := &eventLog{}
	orch := newTestOrchestrator(client, &scriptedDocProvider{}, registry, log)

	require.NoError(t, orch.Submit(context.Background(), "automate invoice approval"))

	// The timed-out call is recorded as a failed result and the follow-up
	// provider call still happens.
	require.Len(t, client.requests, 2)
	var toolMsg *llm.Message
	for _, msg := range client.requests[1].Messages {
		if msg.Role == "tool" {
			toolMsg = msg
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "t1", toolMsg.ToolID)
	assert.Contains(t, toolMsg.Content, "timed out")
	require.Len(t, log.messages, 1)
	assert.Equal(t, "Proceeding without the lookup.", log.messages[0])
}

func TestEmptyResponseIsRetried(t *testing.T) {
	client := &scriptedClient{}
	client.mu.Lock()
	client.steps = append(client.steps, scriptStep{resp: &llm.CompletionResponse{Content: "   "}})
	client.mu.Unlock()
	client.push("A real answer.")

	log := &eventLog{}
	orch := newTestOrchestrator(client, &scriptedDocProvider{}, nil, log)

	require.NoError(t, orch.Submit(context.Background(), "hello"))
	require.Len(t, client.requests, 2)
	require.Len(t, log.messages, 1)
	assert.Equal(t, "A real answer.", log.messages[0])
}

func TestSnapshotRoundTripThroughOrchestrator(t *testing.T) {
	client := &scriptedClient{}
	client.push("What should trigger the workflow?")

	log := &eventLog{}
	orch := newTestOrchestrator(client, &scriptedDocProvider{}, nil, log)
	ctx := context.Background()

	require.NoError(t, orch.Submit(ctx, "automate invoice approval"))
	require.NoError(t, orch.SaveSnapshot(ctx))

	restored, err := orch.RestoreSnapshot(ctx, orch.Session().ID())
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, stage.Clarifying, orch.Session().Stage())
	assert.Len(t, orch.Session().Turns(), 2)
}

func TestRestoreMissingSnapshotStartsFresh(t *testing.T) {
	orch := newTestOrchestrator(&scriptedClient{}, &scriptedDocProvider{}, nil, &eventLog{})

	restored, err := orch.RestoreSnapshot(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Equal(t, stage.Initial, orch.Session().Stage())
}

func TestBufferInputJoinsNextSubmit(t *testing.T) {
	client := &scriptedClient{}
	client.push("Got it.")

	log := &eventLog{}
	orch := newTestOrchestrator(client, &scriptedDocProvider{}, nil, log)

	orch.BufferInput("first half")
	require.NoError(t, orch.Submit(context.Background(), "second half"))

	turns := orch.Session().Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "first half\nsecond half", turns[0].Text)
}
