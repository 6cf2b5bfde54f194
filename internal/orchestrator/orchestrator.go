// Package orchestrator drives the guided workflow-design conversation: it
// owns the session, serializes operations, dispatches completion calls and
// routes their outcomes into stage transitions, diagram repair and document
// generation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/flowpilot/internal/config"
	"github.com/codefionn/flowpilot/internal/diagram"
	"github.com/codefionn/flowpilot/internal/docgen"
	"github.com/codefionn/flowpilot/internal/llm"
	"github.com/codefionn/flowpilot/internal/logger"
	"github.com/codefionn/flowpilot/internal/session"
	"github.com/codefionn/flowpilot/internal/snapshot"
	"github.com/codefionn/flowpilot/internal/stage"
	"github.com/codefionn/flowpilot/internal/tools"
)

// ErrBusy is returned when an operation is requested while another is in
// flight. Operations never queue; the caller reports the rejection and the
// user resubmits.
var ErrBusy = errors.New("another operation is already in progress")

// ErrNothingToRetry is returned by RetryLast when the last operation
// succeeded.
var ErrNothingToRetry = errors.New("no failed operation to retry")

// Events are the orchestrator's outbound callbacks. Any field may be nil.
type Events struct {
	OperationStarted func(phase stage.Phase)
	OperationEnded   func(phase stage.Phase)
	AssistantMessage func(text string)
	DiagramReady     func(diagramText string)
	ArtifactReady    func(artifact *docgen.Artifact)
	RetryAvailable   func(phase stage.Phase, message string)
	Progress         func(message string)
}

func (e *Events) operationStarted(phase stage.Phase) {
	if e != nil && e.OperationStarted != nil {
		e.OperationStarted(phase)
	}
}

func (e *Events) operationEnded(phase stage.Phase) {
	if e != nil && e.OperationEnded != nil {
		e.OperationEnded(phase)
	}
}

func (e *Events) assistantMessage(text string) {
	if e != nil && e.AssistantMessage != nil {
		e.AssistantMessage(text)
	}
}

func (e *Events) diagramReady(diagramText string) {
	if e != nil && e.DiagramReady != nil {
		e.DiagramReady(diagramText)
	}
}

func (e *Events) artifactReady(artifact *docgen.Artifact) {
	if e != nil && e.ArtifactReady != nil {
		e.ArtifactReady(artifact)
	}
}

func (e *Events) retryAvailable(phase stage.Phase, message string) {
	if e != nil && e.RetryAvailable != nil {
		e.RetryAvailable(phase, message)
	}
}

func (e *Events) progress(format string, args ...interface{}) {
	if e != nil && e.Progress != nil {
		e.Progress(fmt.Sprintf(format, args...))
	}
}

// Orchestrator coordinates one conversation. At most one operation runs at a
// time; a second request while one is in flight is rejected with ErrBusy
// rather than queued.
type Orchestrator struct {
	cfg      *config.Config
	client   llm.Client
	registry *tools.Registry
	repair   *diagram.RepairLoop
	docLoop  *docgen.Loop
	store    *snapshot.Store
	sess     *session.Session
	events   *Events

	mu       sync.Mutex
	inFlight bool
	inputBuf []string
}

// New wires an orchestrator over a fresh session.
func New(cfg *config.Config, client llm.Client, docProvider llm.DocumentProvider, registry *tools.Registry, store *snapshot.Store, events *Events) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		client:   client,
		registry: registry,
		repair:   diagram.NewRepairLoop(diagram.NewValidator(diagram.NewSyntaxEngine()), client),
		store:    store,
		sess:     session.New(),
		events:   events,
	}
	o.docLoop = docgen.NewLoop(docProvider, docgen.NewValidator(), func(message string) {
		o.events.progress("%s", message)
	})
	return o
}

// Session returns the conversation state
func (o *Orchestrator) Session() *session.Session {
	return o.sess
}

// SetDocumentDelays overrides the document retry delays (tests).
func (o *Orchestrator) SetDocumentDelays(schema, transport time.Duration) {
	o.docLoop.SetDelays(schema, transport)
}

// BufferInput stores text typed while no operation can accept it, for
// example during a restore. The buffer is drained into the next Submit.
func (o *Orchestrator) BufferInput(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inputBuf = append(o.inputBuf, text)
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return ErrBusy
	}
	o.inFlight = true
	return nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()
}

func (o *Orchestrator) drainBuffer(text string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.inputBuf) == 0 {
		return text
	}
	parts := append(o.inputBuf, text)
	o.inputBuf = nil
	return strings.Join(parts, "\n")
}

// Submit runs one conversational turn for the user's input.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	if err := o.begin(); err != nil {
		return err
	}
	defer o.end()

	return o.runTurn(ctx, o.drainBuffer(text))
}

// RequestDiagram moves the conversation into the diagram phase and asks the
// provider for a flowchart of the agreed design.
func (o *Orchestrator) RequestDiagram(ctx context.Context) error {
	if err := o.begin(); err != nil {
		return err
	}
	defer o.end()

	o.sess.Advance(stage.OutcomeUserDiagramRequest)
	return o.runTurn(ctx, "Please show the agreed workflow as a diagram.")
}

// RequestChanges returns the conversation to requirement gathering and runs
// one turn carrying the requested revision.
func (o *Orchestrator) RequestChanges(ctx context.Context, text string) error {
	if err := o.begin(); err != nil {
		return err
	}
	defer o.end()

	o.sess.Advance(stage.OutcomeRequestChanges)
	return o.runTurn(ctx, text)
}

// runTurn performs one completion-backed operation. The user turn joins the
// transcript only when the operation succeeds; a failure leaves the history
// untouched and records a retry context instead, so a manual retry replays
// the identical input.
func (o *Orchestrator) runTurn(ctx context.Context, text string) error {
	currentStage := o.sess.Stage()
	phase := stage.PhaseFor(currentStage)
	o.events.operationStarted(phase)
	defer o.events.operationEnded(phase)

	spec := stage.InstructionsFor(currentStage)

	window := o.sess.Window()
	messages := make([]*llm.Message, 0, len(window)+1)
	for i := range window {
		messages = append(messages, &window[i])
	}
	messages = append(messages, &llm.Message{Role: "user", Content: text})

	content, err := o.completeWithTools(ctx, spec, messages, phase)
	if err != nil {
		o.recordFailure(phase, text, "", err)
		return err
	}

	outcome := stage.OutcomeCompletion
	if block, ok := diagram.ExtractBlock(content); ok {
		repaired, repairErr := o.repair.Run(ctx, block)
		o.sess.SetDiagramAttempts(o.repair.Attempts())
		if repairErr != nil {
			err := fmt.Errorf("diagram could not be rendered: %w", repairErr)
			o.recordFailure(stage.PhaseDiagram, text, block, err)
			return err
		}
		content = diagram.ReplaceBlock(content, repaired)
		o.events.diagramReady(repaired)
		outcome = stage.OutcomeDiagramDetected
	}

	o.sess.AppendTurn("user", text)
	o.sess.AppendTurn("assistant", content)
	o.sess.Advance(outcome)
	o.sess.ClearRetryContext()
	o.events.assistantMessage(content)
	return nil
}

// Build generates the workflow document from the design transcript.
func (o *Orchestrator) Build(ctx context.Context) error {
	if err := o.begin(); err != nil {
		return err
	}
	defer o.end()

	priorStage := o.sess.Stage()
	o.sess.Advance(stage.OutcomeUserBuild)
	o.events.operationStarted(stage.PhaseBuild)
	defer o.events.operationEnded(stage.PhaseBuild)

	artifact, err := o.docLoop.Generate(ctx, o.sess.Transcript())
	if err != nil {
		o.sess.SetStage(priorStage)
		o.recordFailure(stage.PhaseBuild, "", "", err)
		return err
	}
	if artifact == nil {
		// Schema retries exhausted. Not retryable as-is; the design input
		// itself needs rephrasing.
		o.sess.SetStage(priorStage)
		o.sess.ClearRetryContext()
		o.events.assistantMessage("I couldn't produce a valid workflow document from this design. " +
			"Try rephrasing or simplifying the design, then build again.")
		return nil
	}

	o.sess.Advance(stage.OutcomeDocumentValidated)
	o.sess.ClearRetryContext()
	o.events.artifactReady(artifact)
	o.events.assistantMessage(fmt.Sprintf("Workflow document %q is ready for download.", artifact.Name))
	return nil
}

// RetryLast replays the last failed operation. A manual retry starts a fresh
// diagram lineage.
func (o *Orchestrator) RetryLast(ctx context.Context) error {
	rc := o.sess.RetryContext()
	if rc == nil {
		return ErrNothingToRetry
	}

	o.repair.Reset()
	o.sess.SetDiagramAttempts(0)

	if rc.FailedPhase == stage.PhaseBuild {
		return o.Build(ctx)
	}
	return o.Submit(ctx, rc.LastUserInput)
}

func (o *Orchestrator) recordFailure(phase stage.Phase, input, auxiliary string, err error) {
	rc := o.sess.RetryContext()
	attempts := 1
	if rc != nil && rc.FailedPhase == phase {
		attempts = rc.AttemptCount + 1
	}

	o.sess.SetRetryContext(&session.RetryContext{
		LastUserInput:    input,
		FailedPhase:      phase,
		AttemptCount:     attempts,
		AuxiliaryPayload: auxiliary,
	})

	logger.Error("operation failed in phase %s: %v", phase, err)
	o.events.retryAvailable(phase, friendlyFailureMessage(phase, err))
}

func friendlyFailureMessage(phase stage.Phase, err error) string {
	var syntaxErr *diagram.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "I couldn't produce a diagram that renders. You can retry to start over."
	}

	var emptyErr *llm.EmptyResponseError
	if errors.As(err, &emptyErr) {
		return "The assistant returned an empty answer. You can retry."
	}

	return fmt.Sprintf("Something went wrong during %s. You can retry.", phase)
}

// SaveSnapshot persists the session for a reload.
func (o *Orchestrator) SaveSnapshot(ctx context.Context) error {
	return o.store.Capture(ctx, o.sess)
}

// RestoreSnapshot consumes the snapshot under key and applies it to the
// session. A missing or stale snapshot leaves the fresh session in place and
// reports restored=false without error.
func (o *Orchestrator) RestoreSnapshot(ctx context.Context, key string) (bool, error) {
	state, err := o.store.Restore(ctx, key)
	if err != nil {
		var staleErr *snapshot.StaleError
		if errors.As(err, &staleErr) {
			return false, nil
		}
		return false, err
	}
	if state == nil {
		return false, nil
	}

	o.sess.Apply(*state)
	o.repair.Reset()
	logger.Info("restored session %s at stage %s", state.ID, state.Stage)
	return true, nil
}
