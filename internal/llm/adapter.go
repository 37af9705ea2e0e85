package llm

import (
	"context"
	"fmt"
	"iter"
)

// Adapter is the completion capability bound to one model route.
type Adapter interface {
	Capabilities() Capabilities
	Route() ModelRoute
	Complete(ctx context.Context, prompt string, flags AuxFlags) (string, error)
}

// Streamer is an Adapter that can also stream fragments.
type Streamer interface {
	Adapter
	StreamComplete(ctx context.Context, prompt string, flags AuxFlags) iter.Seq2[string, error]
}

// BasicAdapter issues blocking completions only.
type BasicAdapter struct {
	provider Provider
	route    ModelRoute
	caps     Capabilities
}

// StreamingAdapter adds fragment delivery on top of BasicAdapter.
type StreamingAdapter struct {
	BasicAdapter
	streamer StreamingProvider
}

// NewAdapter resolves the provider's capabilities once and returns the matching variant.
func NewAdapter(p Provider, route ModelRoute) Adapter {
	caps := probeCapabilities(p)
	basic := BasicAdapter{provider: p, route: route, caps: caps}
	if sp, ok := p.(StreamingProvider); ok && caps.SupportsStreaming {
		return &StreamingAdapter{BasicAdapter: basic, streamer: sp}
	}
	basic.caps.SupportsStreaming = false
	return &basic
}

func probeCapabilities(p Provider) Capabilities {
	if cr, ok := p.(CapabilityReporter); ok {
		return cr.Capabilities()
	}
	_, streams := p.(StreamingProvider)
	return Capabilities{SupportsStreaming: streams}
}

// Capabilities reports what the bound provider supports.
func (a *BasicAdapter) Capabilities() Capabilities {
	return a.caps
}

// Route returns the model route the adapter targets.
func (a *BasicAdapter) Route() ModelRoute {
	return a.route
}

// Complete runs one blocking completion and returns the message text.
func (a *BasicAdapter) Complete(ctx context.Context, prompt string, flags AuxFlags) (string, error) {
	resp, err := a.provider.Chat(ctx, a.request(prompt, flags))
	if err != nil {
		return "", fmt.Errorf("%s/%s: %w", a.provider.Name(), a.route.Model, err)
	}
	return resp.Message.Content, nil
}

func (a *BasicAdapter) request(prompt string, flags AuxFlags) ChatRequest {
	req := ChatRequest{
		Model:     a.route.Model,
		Messages:  UserPrompt(prompt),
		MaxTokens: a.route.MaxTokens,
	}
	if a.route.Temperature != nil {
		req.Temperature = *a.route.Temperature
	}
	if a.caps.SupportsAuxFlags {
		req.Flags = flags
	}
	return req
}

// StreamComplete yields text fragments as the backend produces them.
func (a *StreamingAdapter) StreamComplete(ctx context.Context, prompt string, flags AuxFlags) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for chunk, err := range a.streamer.Stream(ctx, a.request(prompt, flags)) {
			if err != nil {
				yield("", fmt.Errorf("%s/%s: %w", a.provider.Name(), a.route.Model, err))
				return
			}
			if !yield(chunk.Content, nil) {
				return
			}
		}
	}
}
