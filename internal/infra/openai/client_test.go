package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("неожиданный путь %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Fatalf("неожиданный заголовок авторизации %q", got)
		}
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("тело запроса: %v", err)
		}
		if req.Model != "gpt-4o" || len(req.Messages) != 1 {
			t.Fatalf("неожиданный запрос %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Hi Ali 👋 "}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL+"/", time.Second)
	resp, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "gpt-4o",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != " Hi Ali 👋 " {
		t.Fatalf("неожиданный ответ %+v", resp)
	}
}

func TestCreateChatCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("key", srv.URL, time.Second).CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "gpt-4o"})
	if err == nil || err.Error() != "openai: rate limited" {
		t.Fatalf("ожидали ошибку API, получили %v", err)
	}
}

func TestCreateChatCompletionNotConfigured(t *testing.T) {
	client := NewClient("  ", "", 0)
	if client.Configured() {
		t.Fatalf("пустой ключ не считается настройкой")
	}
	_, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ожидали ErrNotConfigured, получили %v", err)
	}
}
