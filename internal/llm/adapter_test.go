package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/contractfix/internal/llm"
	llmmock "github.com/animus-coder/contractfix/internal/llm/mock"
)

func TestNewAdapterPicksVariantByCapability(t *testing.T) {
	route := llm.ModelRoute{Name: "m", Model: "model-x"}

	basic := llm.NewAdapter(&llmmock.Provider{}, route)
	_, isStreamer := basic.(llm.Streamer)
	require.False(t, isStreamer)
	require.False(t, basic.Capabilities().SupportsStreaming)

	streaming := llm.NewAdapter(&llmmock.StreamingProvider{}, route)
	_, isStreamer = streaming.(llm.Streamer)
	require.True(t, isStreamer)
	require.True(t, streaming.Capabilities().SupportsStreaming)
}

func TestCompleteForwardsAuxFlagsOnlyWhenSupported(t *testing.T) {
	temp := 0.3
	route := llm.ModelRoute{Model: "model-x", Temperature: &temp, MaxTokens: 64}

	plain := &llmmock.Provider{Responses: []string{"ok"}}
	text, err := llm.NewAdapter(plain, route).Complete(context.Background(), "hi", llm.AuxFlags{Fast: true})
	require.NoError(t, err)
	require.Equal(t, "ok", text)
	req := plain.Requests()[0]
	require.False(t, req.Flags.Fast)
	require.Equal(t, "model-x", req.Model)
	require.Equal(t, 0.3, req.Temperature)
	require.Equal(t, "hi", req.Messages[0].Content)

	aware := &llmmock.Provider{AuxFlags: true}
	_, err = llm.NewAdapter(aware, route).Complete(context.Background(), "hi", llm.AuxFlags{Fast: true})
	require.NoError(t, err)
	require.True(t, aware.Requests()[0].Flags.Fast)
}

func TestCompleteWrapsProviderError(t *testing.T) {
	p := &llmmock.Provider{
		NameValue: "broken",
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{}, errors.New("boom")
		},
	}
	_, err := llm.NewAdapter(p, llm.ModelRoute{Model: "m"}).Complete(context.Background(), "x", llm.AuxFlags{})
	require.ErrorContains(t, err, "broken/m: boom")
}

func TestStreamCompleteYieldsFragmentsThenError(t *testing.T) {
	p := &llmmock.StreamingProvider{
		StreamChunks: []llm.StreamChunk{{Content: "par"}, {Content: ""}, {Content: "tial"}},
		StreamErr:    errors.New("connection reset"),
	}
	a := llm.NewAdapter(p, llm.ModelRoute{Model: "m"}).(llm.Streamer)

	var b strings.Builder
	var streamErr error
	for frag, err := range a.StreamComplete(context.Background(), "x", llm.AuxFlags{}) {
		if err != nil {
			streamErr = err
			break
		}
		b.WriteString(frag)
	}
	require.Equal(t, "partial", b.String())
	require.ErrorContains(t, streamErr, "connection reset")
}
