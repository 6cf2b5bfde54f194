package consts

import "time"

// Retry and attempt limits
const (
	// MaxDiagramRetries is the number of automatic repair attempts per diagram lineage
	MaxDiagramRetries = 3
	// MaxDocumentRetries is the number of re-prompts after a failed document generation
	MaxDocumentRetries = 3
	// MaxCompletionRetries is the number of attempts for a single completion call
	MaxCompletionRetries = 3
	// MaxToolRounds is the number of tool round-trips before forcing a final answer
	MaxToolRounds = 2
)

// Inter-retry delays
const (
	// SchemaRetryDelay is waited between document re-prompts after a schema failure
	SchemaRetryDelay = 1 * time.Second
	// TransportRetryDelay is waited between document re-prompts after a connectivity failure
	TransportRetryDelay = 2 * time.Second
	// CompletionRetryDelay is waited between retried completion calls
	CompletionRetryDelay = 1 * time.Second
)

// Tool budgets per phase
const (
	// ChatToolTimeout bounds a single tool call during conversational phases
	ChatToolTimeout = 1500 * time.Millisecond
	// BuildToolTimeout bounds a single tool call during the build phase
	BuildToolTimeout = 3000 * time.Millisecond
	// ChatToolCallLimit is the maximum tool invocations per round in chat phases
	ChatToolCallLimit = 2
	// BuildToolCallLimit is the maximum tool invocations per round in the build phase
	BuildToolCallLimit = 2
)

// Session and snapshot limits
const (
	// HistoryWindow is the number of recent turns sent to the completion provider
	HistoryWindow = 10
	// SnapshotTTL is the freshness window for a cross-reset session snapshot
	SnapshotTTL = 5 * time.Second
)

// LLM defaults
const (
	// DefaultMaxTokens is the default maximum tokens for completion responses
	DefaultMaxTokens = 2048
	// DefaultTemperature is the default sampling temperature
	DefaultTemperature = 0.7
)
