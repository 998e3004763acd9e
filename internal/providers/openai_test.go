package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_Chat(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, body map[string]any) {
		if body["model"] != "x-ai/grok-4-fast" {
			t.Errorf("model = %v, want x-ai/grok-4-fast", body["model"])
		}
		if body["temperature"] != 0.7 {
			t.Errorf("temperature = %v, want 0.7", body["temperature"])
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"Staking opens Monday."},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":4,"total_tokens":14}}`)
	})

	p := NewOpenAIProvider("openrouter", "key", srv.URL+"/v1", "x-ai/grok-4-fast", time.Second)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:    []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "when staking?"}},
		Model:       "x-ai/grok-4-fast",
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Staking opens Monday." || resp.Usage.TotalTokens != 14 {
		t.Errorf("Chat() = %+v", resp)
	}
}

func TestOpenAIProvider_ChatHTTPError(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"upstream down","type":"server_error"}}`)
	})

	p := NewOpenAIProvider("openrouter", "key", srv.URL+"/v1", "x-ai/grok-4-fast", time.Second)
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Chat() error = %v, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", httpErr.Status)
	}
}

func TestOpenAIProvider_ChatEmpty(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","choices":[]}`)
	})

	p := NewOpenAIProvider("openrouter", "key", srv.URL+"/v1", "m/x", time.Second)
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Chat() error = %v, want ErrEmptyCompletion", err)
	}
}

func TestOpenAIProvider_ChatStream(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, body map[string]any) {
		if body["stream"] != true {
			t.Errorf("stream = %v, want true", body["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"Hel", "lo", " there"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", tok)
		}
		fmt.Fprint(w, "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	p := NewOpenAIProvider("openrouter", "key", srv.URL+"/v1", "m/x", time.Second)
	var chunks []string
	var done bool
	resp, err := p.ChatStream(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}}, func(c StreamChunk) {
		if c.Done {
			done = true
			return
		}
		chunks = append(chunks, c.Content)
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if resp.Content != "Hello there" || resp.FinishReason != "stop" {
		t.Errorf("ChatStream() = %+v", resp)
	}
	if strings.Join(chunks, "|") != "Hel|lo| there" || !done {
		t.Errorf("chunks = %v, done = %v", chunks, done)
	}
}

func TestResolveModel(t *testing.T) {
	p := NewOpenAIProvider("openrouter", "k", "", "x-ai/grok-4-fast", 0)
	tests := []struct {
		in, want string
	}{
		{"", "x-ai/grok-4-fast"},
		{"gpt-4o", "x-ai/grok-4-fast"},
		{"openai/gpt-4o", "openai/gpt-4o"},
	}
	for _, tt := range tests {
		if got := p.resolveModel(tt.in); got != tt.want {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
