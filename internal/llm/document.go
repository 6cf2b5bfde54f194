package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DocumentProvider turns a prompt into a candidate structured document. The
// response is a single text block expected to parse as JSON after
// fence-stripping; validation happens downstream.
type DocumentProvider interface {
	GenerateDocument(ctx context.Context, systemInstruction, userPrompt string) (string, error)
}

// OpenAIDocumentProvider generates documents through the official OpenAI SDK.
type OpenAIDocumentProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIDocumentProvider creates a document provider backed by the OpenAI SDK.
func NewOpenAIDocumentProvider(apiKey, modelName string) (*OpenAIDocumentProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai document provider requires an API key")
	}

	model := strings.TrimSpace(modelName)
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIDocumentProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (p *OpenAIDocumentProvider) GenerateDocument(ctx context.Context, systemInstruction, userPrompt string) (string, error) {
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", &TransportError{Provider: "openai", Err: err}
	}

	if len(completion.Choices) == 0 {
		return "", &EmptyResponseError{Provider: "openai"}
	}

	content := completion.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &EmptyResponseError{Provider: "openai"}
	}

	return content, nil
}

// ClientDocumentProvider adapts any completion Client into a DocumentProvider,
// so the document role can be served by whichever provider is configured.
type ClientDocumentProvider struct {
	client Client
}

// NewClientDocumentProvider wraps a completion client as a document provider.
func NewClientDocumentProvider(client Client) *ClientDocumentProvider {
	return &ClientDocumentProvider{client: client}
}

func (p *ClientDocumentProvider) GenerateDocument(ctx context.Context, systemInstruction, userPrompt string) (string, error) {
	resp, err := p.client.CompleteWithRequest(ctx, &CompletionRequest{
		SystemPrompt: systemInstruction,
		Messages: []*Message{
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	if err := CheckUsable(p.client.GetModelName(), resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}
