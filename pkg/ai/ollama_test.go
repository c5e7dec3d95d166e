package ai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

func TestNewOllamaProvider(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		model       string
		wantBaseURL string
		wantModel   string
	}{
		{"defaults", "", "", ollamaDefaultEndpoint, ollamaDefaultModel},
		{"trailing slash trimmed", "http://gpu-box:11434/", "qwen2.5", "http://gpu-box:11434", "qwen2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOllamaProvider(tt.model, WithBaseURL(tt.baseURL))
			if p.baseURL != tt.wantBaseURL {
				t.Errorf("baseURL = %q, want %q", p.baseURL, tt.wantBaseURL)
			}
			if p.endpoint.url != tt.wantBaseURL+ollamaChatPath {
				t.Errorf("endpoint url = %q", p.endpoint.url)
			}
			if p.model != tt.wantModel {
				t.Errorf("model = %q, want %q", p.model, tt.wantModel)
			}
			if !p.IsAvailable() {
				t.Error("IsAvailable() = false, want true")
			}
		})
	}
}

func TestOllamaProvider_Chat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ollamaChatPath {
			t.Errorf("path = %q, want %q", r.URL.Path, ollamaChatPath)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.Options != nil {
			t.Errorf("options = %+v, want none without sampling", req.Options)
		}

		_ = json.NewEncoder(w).Encode(ollamaReply{
			Message:         ollamaTurn{Role: RoleAssistant, Content: "What is the deadline?"},
			Done:            true,
			PromptEvalCount: 30,
			EvalCount:       6,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider("llama3.2", WithBaseURL(server.URL))
	resp, err := p.Chat(t.Context(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "translate my menu"},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != "What is the deadline?" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.StopReason != "stop" {
		t.Errorf("StopReason = %q, want stop", resp.StopReason)
	}
	if resp.InputTokens != 30 || resp.OutputTokens != 6 {
		t.Errorf("tokens = %d/%d, want 30/6", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaProvider_Sampling(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"},"done":false}`))
	}))
	defer server.Close()

	temp := 0.0
	p := NewOllamaProvider("", WithBaseURL(server.URL), WithSampling(Sampling{Temperature: &temp, MaxTokens: 64}))
	resp, err := p.Chat(t.Context(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if got.Options == nil || got.Options.Temperature == nil || *got.Options.Temperature != 0 {
		t.Errorf("options = %+v, want temperature 0 sent explicitly", got.Options)
	}
	if got.Options != nil && got.Options.NumPredict != 64 {
		t.Errorf("num_predict = %d, want 64", got.Options.NumPredict)
	}
	if resp.StopReason != "incomplete" {
		t.Errorf("StopReason = %q, want incomplete", resp.StopReason)
	}
}

func TestOllamaProvider_Chat_HTTPErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantMessage   string
		wantRetryable bool
	}{
		{"model missing", http.StatusNotFound, `{"error":"model not found"}`, "model not found", false},
		{"overloaded", http.StatusServiceUnavailable, `busy`, "HTTP 503: Service Unavailable", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewOllamaProvider("", WithBaseURL(server.URL))
			_, err := p.Chat(t.Context(), []Message{{Role: RoleUser, Content: "hi"}})
			if err == nil {
				t.Fatal("expected error")
			}

			var aiErr *nimerrors.AIError
			if !nimerrors.As(err, &aiErr) {
				t.Fatalf("expected AIError, got %T", err)
			}
			if aiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", aiErr.StatusCode, tt.status)
			}
			if aiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", aiErr.Message, tt.wantMessage)
			}
			if aiErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", aiErr.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestOllamaProvider_Chat_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	p := NewOllamaProvider("", WithBaseURL(server.URL))
	if _, err := p.Chat(t.Context(), []Message{{Role: RoleUser, Content: "hi"}}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOllamaProvider_CustomHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"message":{"content":"late"},"done":true}`))
	}))
	defer server.Close()

	p := NewOllamaProvider("", WithBaseURL(server.URL), WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, err := p.Chat(t.Context(), []Message{{Role: RoleUser, Content: "hi"}})
	if !nimerrors.IsAIError(err) {
		t.Fatalf("expected AIError from client timeout, got %v", err)
	}
}
