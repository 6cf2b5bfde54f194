package docgen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/flowpilot/internal/llm"
)

type stubDocProvider struct {
	calls      int
	generateFn func(call int) (string, error)
}

func (s *stubDocProvider) GenerateDocument(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.generateFn(s.calls)
}

func newTestLoop(provider llm.DocumentProvider, notify Notifier) *Loop {
	loop := NewLoop(provider, NewValidator(), notify)
	loop.SetDelays(0, 0)
	return loop
}

const validDocJSON = `{"name":"Invoice Approval","nodes":[{"id":"n1"}],"connections":{}}`

func TestGenerateSucceedsFirstAttempt(t *testing.T) {
	provider := &stubDocProvider{generateFn: func(int) (string, error) {
		return validDocJSON, nil
	}}
	loop := newTestLoop(provider, nil)

	artifact, err := loop.Generate(context.Background(), "design transcript")
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, "Invoice Approval", artifact.Name)
	assert.NotEmpty(t, artifact.ID)
	assert.Equal(t, 1, provider.calls)
}

func TestGenerateStripsFencedResponse(t *testing.T) {
	provider := &stubDocProvider{generateFn: func(int) (string, error) {
		return "Here you go:\n```json\n" + validDocJSON + "\n```", nil
	}}
	loop := newTestLoop(provider, nil)

	artifact, err := loop.Generate(context.Background(), "design")
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.JSONEq(t, validDocJSON, string(artifact.Raw))
}

func TestGenerateRetriesSchemaFailures(t *testing.T) {
	provider := &stubDocProvider{generateFn: func(call int) (string, error) {
		if call < 3 {
			return `{"name":"x","nodes":"not-an-array","connections":{}}`, nil
		}
		return validDocJSON, nil
	}}

	var messages []string
	loop := newTestLoop(provider, func(m string) { messages = append(messages, m) })

	artifact, err := loop.Generate(context.Background(), "design")
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, 3, provider.calls)
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0], "formatting problems")
}

func TestGenerateSchemaExhaustionReturnsNilNil(t *testing.T) {
	provider := &stubDocProvider{generateFn: func(int) (string, error) {
		return `{"name":"x","nodes":"not-an-array","connections":{}}`, nil
	}}
	loop := newTestLoop(provider, nil)

	artifact, err := loop.Generate(context.Background(), "design")
	assert.NoError(t, err)
	assert.Nil(t, artifact)
	assert.Equal(t, 4, provider.calls)
}

func TestGenerateTransportExhaustionPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	provider := &stubDocProvider{generateFn: func(int) (string, error) {
		return "", boom
	}}

	var messages []string
	loop := newTestLoop(provider, func(m string) { messages = append(messages, m) })

	artifact, err := loop.Generate(context.Background(), "design")
	require.ErrorIs(t, err, boom)
	assert.Nil(t, artifact)
	assert.Equal(t, 4, provider.calls)
	require.Len(t, messages, 3)
	assert.Contains(t, messages[0], "Connection problem")
}

func TestGenerateUnparsableResponseCountsAsSchemaCause(t *testing.T) {
	provider := &stubDocProvider{generateFn: func(int) (string, error) {
		return "I cannot produce JSON today.", nil
	}}
	loop := newTestLoop(provider, nil)

	artifact, err := loop.Generate(context.Background(), "design")
	assert.NoError(t, err)
	assert.Nil(t, artifact)
}

func TestGenerateRecoversAfterTransportFailure(t *testing.T) {
	provider := &stubDocProvider{generateFn: func(call int) (string, error) {
		if call == 1 {
			return "", errors.New("temporary outage")
		}
		return validDocJSON, nil
	}}
	loop := newTestLoop(provider, nil)

	artifact, err := loop.Generate(context.Background(), "design")
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, 2, provider.calls)
}
