package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatCompletionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-3.5-turbo-16k",
  "choices": [
    {"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "The tide came in."}}
  ]
}`

func testRequest() Request {
	return Request{
		Model:       "gpt-3.5-turbo-16k",
		Temperature: 0.8,
		User:        "user-42",
		Segments: []Segment{
			{Role: RoleSystem, Content: "narrate"},
			{Role: RoleAssistant, Content: "the story so far"},
			{Role: RoleUser, Content: "I open the door", Name: "mira_k"},
		},
	}
}

func TestOpenAIComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatCompletionBody)
	}))
	defer srv.Close()

	client := NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL + "/"})
	text, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "The tide came in.", text)

	assert.Equal(t, "gpt-3.5-turbo-16k", got["model"])
	assert.Equal(t, "user-42", got["user"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 3)
	last := messages[2].(map[string]any)
	assert.Equal(t, "user", last["role"])
	assert.Equal(t, "mira_k", last["name"])
	assert.Equal(t, "I open the door", last["content"])
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`, want: ErrRateLimited},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":{"message":"bad"}}`, want: ErrInvalidRequest},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":{"message":"no"}}`, want: ErrInvalidRequest},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, body: `{}`, want: ErrTimeout},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, want: ErrServiceUnavailable},
		{name: "cut off", status: http.StatusOK, body: `{"id":"x","object":"chat.completion","created":0,"model":"m","choices":[{"index":0,"finish_reason":"length","message":{"role":"assistant","content":"The tide"}}]}`, want: ErrServiceUnavailable},
		{name: "no choices", status: http.StatusOK, body: `{"id":"x","object":"chat.completion","created":0,"model":"m","choices":[]}`, want: ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/"})
			_, err := client.Complete(context.Background(), testRequest())
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, calls, "exactly one network call")
		})
	}
}

func TestOpenAITimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/", Timeout: 50 * time.Millisecond})
	_, err := client.Complete(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrTimeout)
}

func TestOpenAICanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(20*time.Millisecond, cancel)
	defer timer.Stop()

	client := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL + "/", Timeout: time.Minute})
	_, err := client.Complete(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrServiceUnavailable)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "palm"})
	require.Error(t, err)

	c, err := New(Config{Provider: "Anthropic"})
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, c)
}
