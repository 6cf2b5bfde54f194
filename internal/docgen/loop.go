package docgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codefionn/flowpilot/internal/consts"
	"github.com/codefionn/flowpilot/internal/llm"
	"github.com/codefionn/flowpilot/internal/logger"
)

const documentSystemPrompt = `You convert an automation workflow design into a workflow document.
Emit exactly one JSON object and nothing else: no prose, no code fences, no
commentary. The object must use these canonical top-level fields: "name"
(string), "nodes" (array of step objects), "connections" (object keyed by
node id). Every node needs a globally unique "id" and a "created_at"
timestamp in RFC 3339 format.`

// Notifier reports retry progress to the user. The message already names the
// failure cause; emitting it is required, not optional logging.
type Notifier func(message string)

// Loop generates a validated workflow document with automatic re-prompting.
type Loop struct {
	provider  llm.DocumentProvider
	validator *Validator
	notify    Notifier

	schemaDelay    time.Duration
	transportDelay time.Duration
}

// NewLoop creates a document generation loop
func NewLoop(provider llm.DocumentProvider, validator *Validator, notify Notifier) *Loop {
	return &Loop{
		provider:       provider,
		validator:      validator,
		notify:         notify,
		schemaDelay:    consts.SchemaRetryDelay,
		transportDelay: consts.TransportRetryDelay,
	}
}

// SetDelays overrides the inter-retry delays (tests).
func (l *Loop) SetDelays(schema, transport time.Duration) {
	l.schemaDelay = schema
	l.transportDelay = transport
}

// Generate builds the provider prompt from the design transcript and runs the
// generate-validate cycle. On exhaustion of the retry budget it returns
// (nil, nil) for schema failures, telling the caller to ask the user to
// rephrase, while provider-level errors past the budget propagate.
func (l *Loop) Generate(ctx context.Context, design string) (*Artifact, error) {
	maxAttempts := consts.MaxDocumentRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		artifact, err := l.attempt(ctx, design)
		if err == nil {
			return artifact, nil
		}
		lastErr = err
		logger.Warn("document generation failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt == maxAttempts {
			break
		}

		// Distinct user-visible message and delay per failure cause.
		var delay time.Duration
		if isSchemaCause(err) {
			delay = l.schemaDelay
			l.emit(fmt.Sprintf("The generated document had formatting problems; fixing and retrying (%d/%d)...",
				attempt, consts.MaxDocumentRetries))
		} else {
			delay = l.transportDelay
			l.emit(fmt.Sprintf("Connection problem while generating the document; retrying (%d/%d)...",
				attempt, consts.MaxDocumentRetries))
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if isSchemaCause(lastErr) {
		return nil, nil
	}
	return nil, lastErr
}

// isSchemaCause reports whether the failure is about document content rather
// than reaching the provider. Content failures are answered with a re-prompt,
// not a raw resend.
func isSchemaCause(err error) bool {
	var schemaErr *SchemaError
	var parseErr *llm.JSONParseError
	return errors.As(err, &schemaErr) || errors.As(err, &parseErr)
}

func (l *Loop) attempt(ctx context.Context, design string) (*Artifact, error) {
	response, err := l.provider.GenerateDocument(ctx, documentSystemPrompt, design)
	if err != nil {
		return nil, err
	}

	raw, err := llm.ExtractJSONObject(response)
	if err != nil {
		return nil, err
	}

	doc, err := l.validator.Validate(raw)
	if err != nil {
		return nil, err
	}

	return newArtifact(raw, doc), nil
}

func (l *Loop) emit(message string) {
	if l.notify != nil {
		l.notify(message)
	}
}
