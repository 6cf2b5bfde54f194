// Package session holds the per-conversation state: the transcript, the
// design stage, diagram lineage accounting and the retry context of the last
// failed operation.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codefionn/flowpilot/internal/consts"
	"github.com/codefionn/flowpilot/internal/llm"
	"github.com/codefionn/flowpilot/internal/stage"
)

// Turn is one transcript entry.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// RetryContext captures everything needed to replay the last failed
// operation. Because the user turn was never appended on failure, replaying
// LastUserInput reproduces the original request exactly.
type RetryContext struct {
	LastUserInput    string      `json:"last_user_input"`
	FailedPhase      stage.Phase `json:"failed_phase"`
	AttemptCount     int         `json:"attempt_count"`
	AuxiliaryPayload string      `json:"auxiliary_payload,omitempty"`
}

// Session is the state of one conversation. All access goes through the
// mutex; the orchestrator may be serving a snapshot save while an operation
// reads the transcript.
type Session struct {
	mu sync.RWMutex

	id              string
	turns           []Turn
	stage           stage.Stage
	diagramAttempts int
	retryCtx        *RetryContext
	uiMarkup        string
	createdAt       time.Time
	updatedAt       time.Time
}

// New creates an empty session in the initial stage
func New() *Session {
	now := time.Now()
	return &Session{
		id:        uuid.NewString(),
		stage:     stage.Initial,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// AppendTurn records a transcript entry. The orchestrator only calls this
// after an operation succeeds, so a failed operation leaves no trace in the
// history it will replay from.
func (s *Session) AppendTurn(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Text: text})
	s.updatedAt = time.Now()
}

// Turns returns a copy of the full transcript
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns...)
}

// Window returns the most recent transcript turns as completion messages.
// Older turns fall outside the provider context entirely.
func (s *Session) Window() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns
	if len(turns) > consts.HistoryWindow {
		turns = turns[len(turns)-consts.HistoryWindow:]
	}

	messages := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Text})
	}
	return messages
}

// Transcript renders the windowed history as plain text, one line per turn.
// Used as the design input for document generation.
func (s *Session) Transcript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sb strings.Builder
	for _, turn := range s.turns {
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Stage returns the current design stage
func (s *Session) Stage() stage.Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// SetStage moves the session to a new design stage
func (s *Session) SetStage(st stage.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st != s.stage {
		s.stage = st
		s.updatedAt = time.Now()
	}
}

// Advance applies an outcome to the current stage
func (s *Session) Advance(outcome stage.Outcome) stage.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := stage.Advance(s.stage, outcome)
	if next != s.stage {
		s.stage = next
		s.updatedAt = time.Now()
	}
	return next
}

// DiagramAttempts returns the repair attempts consumed by the current
// diagram lineage
func (s *Session) DiagramAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diagramAttempts
}

// SetDiagramAttempts records the lineage attempt counter
func (s *Session) SetDiagramAttempts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagramAttempts = n
}

// RetryContext returns the retry context of the last failed operation, or
// nil when the last operation succeeded.
func (s *Session) RetryContext() *RetryContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.retryCtx == nil {
		return nil
	}
	rc := *s.retryCtx
	return &rc
}

// SetRetryContext records a failed operation for later replay
func (s *Session) SetRetryContext(rc *RetryContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCtx = rc
	s.updatedAt = time.Now()
}

// ClearRetryContext discards the recorded failure
func (s *Session) ClearRetryContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCtx = nil
}

// UIMarkup returns the last rendered interface markup
func (s *Session) UIMarkup() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uiMarkup
}

// SetUIMarkup records the rendered interface markup for snapshotting
func (s *Session) SetUIMarkup(markup string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uiMarkup = markup
}

// Export captures the full session state in one atomic read.
func (s *Session) Export() ExportedState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := ExportedState{
		ID:              s.id,
		Turns:           append([]Turn(nil), s.turns...),
		Stage:           s.stage,
		DiagramAttempts: s.diagramAttempts,
		UIMarkup:        s.uiMarkup,
	}
	if s.retryCtx != nil {
		rc := *s.retryCtx
		state.RetryContext = &rc
	}
	return state
}

// Apply overwrites the session state in one atomic write.
func (s *Session) Apply(state ExportedState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = state.ID
	s.turns = append([]Turn(nil), state.Turns...)
	s.stage = state.Stage
	s.diagramAttempts = state.DiagramAttempts
	s.uiMarkup = state.UIMarkup
	s.retryCtx = nil
	if state.RetryContext != nil {
		rc := *state.RetryContext
		s.retryCtx = &rc
	}
	s.updatedAt = time.Now()
}

// ExportedState is the snapshot-serializable form of a session.
type ExportedState struct {
	ID              string        `json:"id"`
	Turns           []Turn        `json:"turns"`
	Stage           stage.Stage   `json:"stage"`
	DiagramAttempts int           `json:"diagram_attempts"`
	RetryContext    *RetryContext `json:"retry_context,omitempty"`
	UIMarkup        string        `json:"ui_markup,omitempty"`
}
