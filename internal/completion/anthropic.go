package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultAnthropicMaxTokens is used when neither the request nor the
// config sets a limit; the Messages API requires one.
const defaultAnthropicMaxTokens = 1024

type Anthropic struct {
	client *anthropic.Client
	config Config
}

func NewAnthropic(cfg Config) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, config: cfg}
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, a.config.Timeout)
	defer cancel()

	system, messages := anthropicMessages(req.Segments)
	if len(messages) == 0 {
		return "", fmt.Errorf("%s: %w: no user turn in request", ProviderAnthropic, ErrInvalidRequest)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(firstPositive(req.MaxTokens, a.config.MaxTokens, defaultAnthropicMaxTokens)),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.User != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(req.User)}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classify(ProviderAnthropic, apiErr.StatusCode, err)
		}
		return "", classify(ProviderAnthropic, 0, err)
	}

	if msg.StopReason == anthropic.StopReasonMaxTokens {
		return "", fmt.Errorf("%s: %w: completion cut off at the token limit", ProviderAnthropic, ErrServiceUnavailable)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(text.Text)
		}
	}
	if content.Len() == 0 {
		return "", fmt.Errorf("%s: %w: empty completion", ProviderAnthropic, ErrServiceUnavailable)
	}
	return content.String(), nil
}

// anthropicMessages folds system and assistant context into the system
// prompt and merges the user turns into a single message. Named user
// segments are prefixed with the speaker.
func anthropicMessages(segments []Segment) (string, []anthropic.MessageParam) {
	var system []string
	var user []string
	for _, seg := range segments {
		switch seg.Role {
		case RoleSystem, RoleAssistant:
			system = append(system, seg.Content)
		default:
			content := seg.Content
			if seg.Name != "" {
				content = seg.Name + ": " + content
			}
			user = append(user, content)
		}
	}

	if len(user) == 0 {
		return strings.Join(system, "\n\n"), nil
	}
	return strings.Join(system, "\n\n"), []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(strings.Join(user, "\n\n"))),
	}
}
