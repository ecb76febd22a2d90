package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const messageBody = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-haiku-4-5-20251001",
  "content": [{"type": "text", "text": "Mira hesitated."}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 10, "output_tokens": 3}
}`

func TestAnthropicComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageBody)
	}))
	defer srv.Close()

	client := NewAnthropic(Config{APIKey: "test-key", BaseURL: srv.URL})
	text, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Mira hesitated.", text)

	assert.Equal(t, float64(defaultAnthropicMaxTokens), got["max_tokens"])
	metadata := got["metadata"].(map[string]any)
	assert.Equal(t, "user-42", metadata["user_id"])

	system := got["system"].([]any)
	require.Len(t, system, 1)
	assert.Equal(t, "narrate\n\nthe story so far", system[0].(map[string]any)["text"])

	messages := got["messages"].([]any)
	require.Len(t, messages, 1)
	first := messages[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	content := first["content"].([]any)
	assert.Equal(t, "mira_k: I open the door", content[0].(map[string]any)["text"])
}

func TestAnthropicErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: ErrRateLimited},
		{name: "bad request", status: http.StatusBadRequest, want: ErrInvalidRequest},
		{name: "overloaded", status: 529, want: ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"nope"}}`)
			}))
			defer srv.Close()

			client := NewAnthropic(Config{APIKey: "k", BaseURL: srv.URL})
			_, err := client.Complete(context.Background(), testRequest())
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestAnthropicCutOffAtTokenLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, strings.Replace(messageBody, `"end_turn"`, `"max_tokens"`, 1))
	}))
	defer srv.Close()

	client := NewAnthropic(Config{APIKey: "k", BaseURL: srv.URL})
	text, err := client.Complete(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Empty(t, text)
}

func TestAnthropicRequiresUserTurn(t *testing.T) {
	client := NewAnthropic(Config{APIKey: "k", BaseURL: "http://127.0.0.1:0"})
	_, err := client.Complete(context.Background(), Request{Segments: []Segment{{Role: RoleSystem, Content: "x"}}})
	require.ErrorIs(t, err, ErrInvalidRequest)
}
