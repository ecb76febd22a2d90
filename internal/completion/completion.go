// Package completion adapts hosted chat-completion APIs to the single
// request shape the narrative engine needs.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrServiceUnavailable = errors.New("completion service unavailable")
	ErrRateLimited        = errors.New("completion service rate limited")
	ErrInvalidRequest     = errors.New("completion request rejected")
	ErrTimeout            = errors.New("completion timed out")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Segment is one message of the assembled context.
type Segment struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type Request struct {
	Model       string
	Temperature float64
	User        string
	MaxTokens   int
	Segments    []Segment
}

// Client performs exactly one completion call per invocation.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	// Timeout bounds each call on top of the caller's deadline. Zero disables it.
	Timeout time.Duration
	// MaxTokens is used when a request does not set its own.
	MaxTokens int
}

// New returns the adapter for cfg.Provider.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// classify maps a failed call to one of the package sentinels. status is
// the HTTP status of the response, or zero when none was received.
func classify(provider string, status int, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		// the caller gave up; that is not a service failure
		return fmt.Errorf("%s: %w", provider, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", provider, ErrTimeout, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %w", provider, ErrRateLimited, err)
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w: %w", provider, ErrTimeout, err)
	case status >= 400 && status < 500:
		return fmt.Errorf("%s: %w: %w", provider, ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%s: %w: %w", provider, ErrServiceUnavailable, err)
	}
}
