// Package discord posts story fragments through the Discord REST API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"crowdedhouse/internal/fragment"
)

const DefaultBaseURL = "https://discord.com/api/v10/"

var ErrContentTooLong = errors.New("message content exceeds discord limit")

// APIError is a non-2xx response from Discord.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("discord: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("discord: HTTP %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
}

// Permanent reports whether resending the same request cannot succeed.
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string   { return e.err.Error() }
func (e permanentError) Unwrap() error   { return e.err }
func (e permanentError) Permanent() bool { return true }

type Config struct {
	Token   string
	AppID   string
	BaseURL string
	// HTTPClient defaults to a client with a 15 second timeout.
	HTTPClient *http.Client
}

type Client struct {
	http    *http.Client
	baseURL string
	token   string
	appID   string
}

func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{http: httpClient, baseURL: baseURL, token: cfg.Token, appID: cfg.AppID}
}

// ChannelSender posts to a channel; target is the channel id.
func (c *Client) ChannelSender() *ChannelSender {
	return &ChannelSender{client: c}
}

// FollowupSender answers a deferred interaction; target is the
// interaction token.
func (c *Client) FollowupSender() *FollowupSender {
	return &FollowupSender{client: c}
}

type ChannelSender struct {
	client *Client
}

func (s *ChannelSender) Send(ctx context.Context, target, content string) (string, error) {
	return s.client.post(ctx, "channels/"+target+"/messages", content)
}

type FollowupSender struct {
	client *Client
}

func (s *FollowupSender) Send(ctx context.Context, target, content string) (string, error) {
	if s.client.appID == "" {
		return "", permanentError{errors.New("discord: followup messages need an application id")}
	}
	return s.client.post(ctx, "webhooks/"+s.client.appID+"/"+target, content)
}

type messagePayload struct {
	Content string `json:"content"`
}

type messageResponse struct {
	ID string `json:"id"`
}

func (c *Client) post(ctx context.Context, path, content string) (string, error) {
	if n := utf8.RuneCountInString(content); n > fragment.DefaultLimit {
		return "", permanentError{fmt.Errorf("%d characters: %w", n, ErrContentTooLong)}
	}

	body, err := json.Marshal(messagePayload{Content: content})
	if err != nil {
		return "", fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting to discord: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading discord response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return "", apiErr
	}

	var msg messageResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &msg); err != nil {
			return "", fmt.Errorf("decoding discord response: %w", err)
		}
	}
	return msg.ID, nil
}
