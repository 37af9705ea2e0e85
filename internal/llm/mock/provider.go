package mock

import (
	"context"
	"iter"
	"sync"

	"github.com/animus-coder/contractfix/internal/llm"
)

// Provider is a batch-only test double implementing llm.Provider.
type Provider struct {
	NameValue string
	ChatFn    func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	// Responses are returned in order when ChatFn is nil; the last one repeats.
	Responses []string
	AuxFlags  bool

	mu       sync.Mutex
	requests []llm.ChatRequest
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{SupportsAuxFlags: p.AuxFlags}
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	n := p.record(req)
	if p.ChatFn != nil {
		return p.ChatFn(ctx, req)
	}
	content := "mock"
	if len(p.Responses) > 0 {
		idx := n
		if idx >= len(p.Responses) {
			idx = len(p.Responses) - 1
		}
		content = p.Responses[idx]
	}
	return llm.ChatResponse{
		Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: content},
		FinishReason: "stop",
		ProviderName: p.Name(),
		Model:        req.Model,
	}, nil
}

// Calls returns how many Chat requests were made.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests returns a copy of every Chat request received.
func (p *Provider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ChatRequest(nil), p.requests...)
}

func (p *Provider) record(req llm.ChatRequest) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return len(p.requests) - 1
}

// StreamingProvider adds scripted fragment delivery to Provider.
type StreamingProvider struct {
	Provider
	StreamChunks []llm.StreamChunk
	// StreamErr, when set, is yielded after StreamChunks.
	StreamErr error

	streams int
}

func (p *StreamingProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{SupportsStreaming: true, SupportsAuxFlags: p.AuxFlags}
}

func (p *StreamingProvider) Stream(ctx context.Context, req llm.ChatRequest) iter.Seq2[llm.StreamChunk, error] {
	p.mu.Lock()
	p.streams++
	p.mu.Unlock()
	return func(yield func(llm.StreamChunk, error) bool) {
		for _, c := range p.StreamChunks {
			if !yield(c, nil) {
				return
			}
		}
		if p.StreamErr != nil {
			yield(llm.StreamChunk{}, p.StreamErr)
		}
	}
}

// Streams returns how many Stream calls were made.
func (p *StreamingProvider) Streams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams
}
