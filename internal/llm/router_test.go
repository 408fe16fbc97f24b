package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	err   error
	calls []Request
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return Response{}, f.err
	}
	model := req.Model
	if model == "" {
		model = f.name + "-default"
	}
	return Response{Content: "ok from " + f.name, Provider: f.name, Model: model}, nil
}

func TestDetectTaskType(t *testing.T) {
	tests := []struct {
		prompt string
		want   TaskType
	}{
		{"Write a function that sorts numbers", TaskCode},
		{"Fix this PROGRAM", TaskCode},
		{"write me a story about dragons", TaskCreative},
		{"Be creative", TaskCreative},
		{"Explain goroutines", TaskReasoning},
		{"Why is the sky blue?", TaskReasoning},
		{"analyze this log", TaskReasoning},
		{"hello there", TaskFast},
		{"", TaskFast},
	}

	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectTaskType(tt.prompt))
		})
	}
}

func TestRouter_Route(t *testing.T) {
	r := NewRouter(nil)

	assert.Equal(t, Route{Task: TaskCode, Provider: ProviderDeepSeek, Model: "deepseek-coder"}, r.Route("refactor this code", ""))
	assert.Equal(t, Route{Task: TaskFast, Provider: ProviderOpenAI, Model: "gpt-4o-mini"}, r.Route("hi", ""))
	assert.Equal(t, Route{Task: TaskVision, Provider: ProviderOpenAI, Model: "gpt-4o"}, r.Route("hi", TaskVision))

	unknown := r.Route("hi", TaskType("poetry"))
	assert.Equal(t, TaskType("poetry"), unknown.Task)
	assert.Equal(t, ProviderOpenAI, unknown.Provider)
	assert.Equal(t, "gpt-4o", unknown.Model)
}

func TestRouter_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("routes to configured provider with task model", func(t *testing.T) {
		deepseek := &fakeProvider{name: ProviderDeepSeek}
		openai := &fakeProvider{name: ProviderOpenAI}
		r := NewRouter(nil, openai, deepseek, nil)

		route, resp, err := r.Complete(ctx, Request{Prompt: "write a function"}, "")
		require.NoError(t, err)
		assert.Equal(t, ProviderDeepSeek, route.Provider)
		assert.Equal(t, "deepseek-coder", route.Model)
		assert.Equal(t, "ok from deepseek", resp.Content)
		require.Len(t, deepseek.calls, 1)
		assert.Equal(t, "deepseek-coder", deepseek.calls[0].Model)
		assert.Empty(t, openai.calls)
	})

	t.Run("falls back in provider order", func(t *testing.T) {
		openrouter := &fakeProvider{name: ProviderOpenRouter}
		hf := &fakeProvider{name: ProviderHuggingFace}
		r := NewRouter(nil, hf, openrouter)

		route, resp, err := r.Complete(ctx, Request{Prompt: "hello"}, "")
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenRouter, route.Provider)
		assert.Equal(t, "openrouter-default", route.Model)
		assert.Equal(t, ProviderOpenRouter, resp.Provider)
		assert.Empty(t, hf.calls)
	})

	t.Run("no providers", func(t *testing.T) {
		_, _, err := NewRouter(nil).Complete(ctx, Request{Prompt: "hello"}, "")
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
	})

	t.Run("provider failure is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		r := NewRouter(nil, &fakeProvider{name: ProviderOpenAI, err: boom})
		_, _, err := r.Complete(ctx, Request{Prompt: "hello"}, "")
		assert.ErrorIs(t, err, boom)
	})
}

func TestRouter_ProviderLookup(t *testing.T) {
	r := NewRouter(nil, &fakeProvider{name: ProviderOpenAI})

	p, err := r.Provider(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p.Name())

	_, err = r.Provider(ProviderDeepSeek)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	assert.Equal(t, map[string]bool{
		ProviderOpenAI:      true,
		ProviderDeepSeek:    false,
		ProviderOpenRouter:  false,
		ProviderHuggingFace: false,
	}, r.Configured())
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	failing := &fakeProvider{name: ProviderOpenAI, err: errors.New("upstream 500")}
	b := NewBreaker(failing, nil)

	for i := 0; i < 5; i++ {
		_, err := b.Complete(ctx, Request{Prompt: "x"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Complete(ctx, Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Len(t, failing.calls, 5)
}

func TestBreaker_PassesThrough(t *testing.T) {
	b := NewBreaker(&fakeProvider{name: ProviderDeepSeek}, nil)
	resp, err := b.Complete(context.Background(), Request{Prompt: "x", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", resp.Model)
	assert.Equal(t, ProviderDeepSeek, b.Name())
	assert.Equal(t, "closed", b.State())
}
