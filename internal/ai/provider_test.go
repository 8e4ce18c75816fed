package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenRouterChatParsesUsage(t *testing.T) {
	var got openRouterChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}],"usage":{"prompt_tokens":12,"completion_tokens":30}}`)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "k", "some/model", "", "")
	c, err := p.Chat(context.Background(), []Message{System("s"), User("u")})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if c.Content != `{"ok":true}` {
		t.Fatalf("content = %q", c.Content)
	}
	if c.TotalTokens() != 42 {
		t.Fatalf("tokens = %d, want 42", c.TotalTokens())
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json response format, got %+v", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestOpenRouterRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "k", "m", "", "")
	_, err := p.Chat(context.Background(), []Message{User("hi")})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestOpenRouterRequiresKey(t *testing.T) {
	p := NewOpenRouterProvider("", "", "m", "", "")
	if _, err := p.Chat(context.Background(), nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Format != "json" || req.Stream {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"{}"},"prompt_eval_count":5,"eval_count":7}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")
	c, err := p.Chat(context.Background(), []Message{User("hi")})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if c.PromptTokens != 5 || c.CompletionTokens != 7 {
		t.Fatalf("usage = %+v", c)
	}
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "x").Chat(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("err = %v", err)
	}
	if errors.Is(err, ErrRateLimited) {
		t.Fatalf("404 must not look rate limited")
	}
}

func TestRegistryResolvesByName(t *testing.T) {
	r := NewRegistry()
	r.Register(" Fake ", func(ctx context.Context, model string) (Provider, error) {
		return NewOllamaProvider("", model), nil
	})

	p, err := r.Get(context.Background(), "fake", "tiny")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if op, ok := p.(*OllamaProvider); !ok || op.Model != "tiny" {
		t.Fatalf("provider = %#v", p)
	}
	_, err = r.Get(context.Background(), "missing", "")
	if err == nil || !strings.Contains(err.Error(), "known: fake") {
		t.Fatalf("unknown provider err = %v", err)
	}
}

func TestRegistryResolveModelRefs(t *testing.T) {
	r := NewRegistry()
	builds := 0
	for _, name := range []string{"ollama", "openrouter"} {
		r.Register(name, func(ctx context.Context, model string) (Provider, error) {
			builds++
			return NewOllamaProvider("http://"+name, model), nil
		})
	}
	ctx := context.Background()

	p, err := r.Resolve(ctx, "openrouter:anthropic/claude-3.5-sonnet", "ollama")
	if err != nil {
		t.Fatalf("resolve prefixed: %v", err)
	}
	if op := p.(*OllamaProvider); op.BaseURL != "http://openrouter" || op.Model != "anthropic/claude-3.5-sonnet" {
		t.Fatalf("prefixed ref = %#v", op)
	}

	p, err = r.Resolve(ctx, "llama3:latest", "ollama")
	if err != nil {
		t.Fatalf("resolve bare: %v", err)
	}
	if op := p.(*OllamaProvider); op.BaseURL != "http://ollama" || op.Model != "llama3:latest" {
		t.Fatalf("bare ref = %#v", op)
	}

	again, err := r.Get(ctx, "ollama", "llama3:latest")
	if err != nil || again != p {
		t.Fatalf("expected cached provider, got %v %v", again, err)
	}
	if builds != 2 {
		t.Fatalf("builds = %d, want 2", builds)
	}
}
