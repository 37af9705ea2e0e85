package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/animus-coder/contractfix/internal/llm"
)

const (
	defaultNumCtx = 8192
	fastNumCtx    = 4096
)

// Provider implements an Ollama client on the /api/generate endpoint.
type Provider struct {
	name    string
	client  *http.Client
	baseURL string
}

// NewProvider constructs an Ollama provider.
func NewProvider(name, baseURL string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	if timeout == 0 {
		timeout = 600 * time.Second
	}

	return &Provider{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Capabilities reports native streaming and support for the fast flag (smaller context window).
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{SupportsStreaming: true, SupportsAuxFlags: true}
}

// Chat executes a non-streaming generation.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	res, err := p.post(ctx, req, false)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	defer res.Body.Close()

	var resp generateResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return llm.ChatResponse{}, fmt.Errorf("decode response: %w", err)
	}

	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: resp.text(),
		},
		FinishReason: "stop",
		Usage: llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

// Stream reads the NDJSON response line by line, yielding each fragment.
// A body that ends without a done line yields io.ErrUnexpectedEOF.
func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) iter.Seq2[llm.StreamChunk, error] {
	return func(yield func(llm.StreamChunk, error) bool) {
		res, err := p.post(ctx, req, true)
		if err != nil {
			yield(llm.StreamChunk{}, err)
			return
		}
		defer res.Body.Close()

		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var frag generateResponse
			if err := json.Unmarshal(line, &frag); err != nil {
				yield(llm.StreamChunk{}, fmt.Errorf("decode stream line: %w", err))
				return
			}
			if frag.Error != "" {
				yield(llm.StreamChunk{}, fmt.Errorf("ollama: %s", frag.Error))
				return
			}
			chunk := llm.StreamChunk{Content: frag.text()}
			if frag.Done {
				chunk.FinishReason = "stop"
			}
			if !yield(chunk, nil) {
				return
			}
			if frag.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(llm.StreamChunk{}, fmt.Errorf("read stream: %w", err))
			return
		}
		yield(llm.StreamChunk{}, fmt.Errorf("ollama: stream ended before done: %w", io.ErrUnexpectedEOF))
	}
}

func (p *Provider) post(ctx context.Context, req llm.ChatRequest, stream bool) (*http.Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	numCtx := defaultNumCtx
	if req.Flags.Fast {
		numCtx = fastNumCtx
	}
	options := map[string]interface{}{
		"num_ctx":     numCtx,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	payload, err := json.Marshal(generateRequest{
		Model:   req.Model,
		Prompt:  joinPrompt(req.Messages),
		Stream:  stream,
		Options: options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if res.StatusCode >= 300 {
		defer res.Body.Close()
		b, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", res.StatusCode, string(b))
	}
	return res, nil
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Message  *struct {
		Content string `json:"content"`
	} `json:"message,omitempty"`
	Done            bool   `json:"done"`
	Error           string `json:"error,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// text prefers the generate field and falls back to chat-shaped payloads.
func (r generateResponse) text() string {
	if r.Response != "" {
		return r.Response
	}
	if r.Message != nil {
		return r.Message.Content
	}
	return ""
}

func joinPrompt(msgs []llm.ChatMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}
