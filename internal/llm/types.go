package llm

import (
	"context"
	"iter"
)

// Role is the message role used in chat exchanges.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage represents a single message exchanged with the model.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
}

// AuxFlags are optional hints some backends understand.
type AuxFlags struct {
	Fast    bool
	Verbose bool
}

// ChatRequest is the input for chat providers.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	Flags       AuxFlags
}

// Usage captures token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the result of a chat completion.
type ChatResponse struct {
	Message      ChatMessage
	FinishReason string
	Usage        Usage
	ProviderName string
	Model        string
}

// StreamChunk is one fragment of a streamed response. Content may be empty.
type StreamChunk struct {
	Content      string
	FinishReason string
}

// Provider is the minimal backend contract: a blocking request/response call.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// StreamingProvider is implemented by backends that can deliver fragments incrementally.
// The returned sequence is finite and single-use; a non-nil error ends it.
type StreamingProvider interface {
	Provider
	Stream(ctx context.Context, req ChatRequest) iter.Seq2[StreamChunk, error]
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	SupportsStreaming bool
	SupportsAuxFlags  bool
}

// CapabilityReporter lets a provider declare capabilities explicitly.
// Providers that do not implement it are probed by interface: streaming iff StreamingProvider, no aux flags.
type CapabilityReporter interface {
	Capabilities() Capabilities
}

// UserPrompt wraps a single prompt as a one-message conversation.
func UserPrompt(prompt string) []ChatMessage {
	return []ChatMessage{{Role: RoleUser, Content: prompt}}
}
