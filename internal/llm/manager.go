package llm

import (
	"fmt"
	"strings"

	"github.com/codefionn/flowpilot/internal/config"
)

// Manager creates provider clients from configuration
type Manager struct {
	cfg *config.Config
}

// NewManager creates a provider manager
func NewManager(cfg *config.Config) *Manager {
	return &Manager{cfg: cfg}
}

// ChatClient creates the completion client for the configured provider
func (m *Manager) ChatClient() (Client, error) {
	switch strings.ToLower(strings.TrimSpace(m.cfg.Provider)) {
	case "anthropic":
		return NewAnthropicClient(m.cfg.AnthropicAPIKey, m.cfg.ChatModel)
	case "openai":
		return NewOpenAIClient(m.cfg.OpenAIAPIKey, m.cfg.ChatModel)
	default:
		return nil, fmt.Errorf("unknown provider %q", m.cfg.Provider)
	}
}

// DocumentProvider creates the structured-document provider. OpenAI gets the
// SDK-backed provider; otherwise the chat client is adapted to the role.
func (m *Manager) DocumentProvider() (DocumentProvider, error) {
	if strings.EqualFold(m.cfg.Provider, "openai") || (m.cfg.OpenAIAPIKey != "" && m.cfg.DocumentModel != "") {
		return NewOpenAIDocumentProvider(m.cfg.OpenAIAPIKey, m.cfg.DocumentModel)
	}

	client, err := m.ChatClient()
	if err != nil {
		return nil, err
	}
	return NewClientDocumentProvider(client), nil
}
