package gemini

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/animus-coder/contractfix/internal/llm"
)

// Provider talks to the Gemini API through the genai SDK.
type Provider struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client

	once   sync.Once
	client *genai.Client
	err    error
}

// NewProvider constructs a Gemini provider. The SDK client is created on first use.
func NewProvider(name, baseURL, apiKey string, timeout time.Duration) *Provider {
	if timeout == 0 {
		timeout = 600 * time.Second
	}
	return &Provider{
		name:       name,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Capabilities reports native streaming without aux flag support.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{SupportsStreaming: true}
}

func (p *Provider) sdk(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:     p.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: p.httpClient,
		}
		if p.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL + "/"}
		}
		p.client, p.err = genai.NewClient(ctx, cfg)
		if p.err != nil {
			p.err = fmt.Errorf("gemini: init client: %w", p.err)
		}
	})
	return p.client, p.err
}

// Chat executes a single GenerateContent call.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if req.Model == "" {
		return llm.ChatResponse{}, fmt.Errorf("model is required")
	}
	client, err := p.sdk(ctx)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, toContents(req.Messages), generationConfig(req))
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("gemini: %w", err)
	}

	out := llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: resp.Text(),
		},
		FinishReason: "stop",
		ProviderName: p.name,
		Model:        req.Model,
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		out.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Stream adapts GenerateContentStream; responses without text become empty fragments.
func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) iter.Seq2[llm.StreamChunk, error] {
	return func(yield func(llm.StreamChunk, error) bool) {
		if req.Model == "" {
			yield(llm.StreamChunk{}, fmt.Errorf("model is required"))
			return
		}
		client, err := p.sdk(ctx)
		if err != nil {
			yield(llm.StreamChunk{}, err)
			return
		}
		for resp, err := range client.Models.GenerateContentStream(ctx, req.Model, toContents(req.Messages), generationConfig(req)) {
			if err != nil {
				yield(llm.StreamChunk{}, fmt.Errorf("gemini: %w", err))
				return
			}
			var chunk llm.StreamChunk
			if resp != nil {
				chunk.Content = resp.Text()
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func generationConfig(req llm.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

func toContents(msgs []llm.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}
