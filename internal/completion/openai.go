package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAI struct {
	client *openai.Client
	config Config
}

func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, config: cfg}
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, o.config.Timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    openAIMessages(req.Segments),
		Temperature: openai.Float(req.Temperature),
	}
	if maxTokens := firstPositive(req.MaxTokens, o.config.MaxTokens); maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classify(ProviderOpenAI, apiErr.StatusCode, err)
		}
		return "", classify(ProviderOpenAI, 0, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w: response has no choices", ProviderOpenAI, ErrServiceUnavailable)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return "", fmt.Errorf("%s: %w: completion cut off at the token limit", ProviderOpenAI, ErrServiceUnavailable)
	}
	content := choice.Message.Content
	if content == "" {
		return "", fmt.Errorf("%s: %w: empty completion", ProviderOpenAI, ErrServiceUnavailable)
	}
	return content, nil
}

func openAIMessages(segments []Segment) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(segments))
	for _, seg := range segments {
		switch seg.Role {
		case RoleSystem:
			msg := openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(seg.Content)},
			}
			if seg.Name != "" {
				msg.Name = openai.String(seg.Name)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfSystem: &msg})
		case RoleAssistant:
			msg := openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(seg.Content)},
			}
			if seg.Name != "" {
				msg.Name = openai.String(seg.Name)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		default:
			msg := openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(seg.Content)},
			}
			if seg.Name != "" {
				msg.Name = openai.String(seg.Name)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfUser: &msg})
		}
	}
	return messages
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
