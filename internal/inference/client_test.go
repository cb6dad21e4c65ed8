package inference

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testTurns() []Turn {
	return []Turn{
		{Role: "system", Content: "You are a nutrition advisor."},
		{Role: "user", Content: "Suggest a breakfast."},
	}
}

func TestChatReturnsReplyWithMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Try overnight oats."}}],
			"usage": {"total_tokens": 42}
		}`))
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL, Model: "nutrition"})

	reply, err := client.Chat(context.Background(), "", testTurns())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Text != "Try overnight oats." {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.TokensUsed != 42 {
		t.Errorf("tokens = %d", reply.TokensUsed)
	}
	if reply.ProcessingTime <= 0 {
		t.Errorf("processing time = %v", reply.ProcessingTime)
	}
}

func TestChatModelErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "model exploded", "type": "server_error"}}`))
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL, Model: "nutrition"})

	_, err := client.Chat(context.Background(), "", testTurns())
	if !errors.Is(err, ErrModel) {
		t.Fatalf("expected ErrModel, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on model error)", got)
	}
}

func TestChatMalformedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`this is not json at all`))
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL, Model: "nutrition"})

	_, err := client.Chat(context.Background(), "", testTurns())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestChatEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL, Model: "nutrition"})

	_, err := client.Chat(context.Background(), "", testTurns())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestChatRetriesWhenUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Stall past the request timeout so every attempt looks like an
		// unreachable server.
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(Options{
		Endpoint: server.URL,
		Model:    "nutrition",
		Timeout:  30 * time.Millisecond,
	})

	_, err := client.Chat(context.Background(), "", testTurns())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3 (initial attempt plus two retries)", got)
	}
}

func TestChatConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(Options{Endpoint: server.URL, Model: "nutrition"})

	_, err := client.Chat(context.Background(), "", testTurns())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestChatCallerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL, Model: "nutrition"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Chat(ctx, "", testTurns())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Options{Endpoint: server.URL, Model: "nutrition"})

	if !client.Healthy(context.Background()) {
		t.Error("expected healthy server")
	}

	server.Close()
	if client.Healthy(context.Background()) {
		t.Error("expected unhealthy after shutdown")
	}
}
