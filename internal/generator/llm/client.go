// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package llm wraps the Anthropic SDK call that turns a grounded prompt into a
JSON-shaped SQL generation response, plus the small JSON-extraction helper
the response body needs before it can be unmarshaled: strip Markdown code
fences, locate the first balanced JSON object by brace-depth scanning, and
fall back to conservative whitespace sanitization before giving up.
*/
package llm

import (
	stdctx "context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxTokens      = 2048
)

// ErrEmptyResponse is returned when the model responds with no usable text
// content block.
var ErrEmptyResponse = errors.New("llm: empty response")

// Client wraps an Anthropic chat-completion call configured for
// deterministic, schema-grounded SQL generation (temperature 0).
type Client struct {
	client anthropic.Client
	model  anthropic.Model
	timeout time.Duration
}

// New constructs a Client. apiKey must be non-empty; model selects the
// Anthropic model used for generation; timeout bounds every call's
// wall-clock duration.
func New(apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   anthropic.Model(model),
		timeout: timeout,
	}
}

// Complete sends prompt at temperature 0 and returns the raw text response.
// The call is bounded by the client's configured timeout and retries on
// transient (429/5xx/network-timeout) errors with exponential backoff.
func (c *Client) Complete(ctx stdctx.Context, prompt string) (string, error) {
	callCtx, cancel := stdctx.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-callCtx.Done():
				return "", fmt.Errorf("llm: %w", callCtx.Err())
			}
		}

		message, err := c.client.Messages.New(callCtx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", ErrEmptyResponse
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", fmt.Errorf("llm: unexpected response content type %q", content.Type)
			}
			return content.Text, nil
		}

		lastErr = err
		if callCtx.Err() != nil {
			return "", fmt.Errorf("llm: %w", callCtx.Err())
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("llm: %w", err)
		}
	}
	return "", fmt.Errorf("llm: failed after %d attempts: %w", maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, stdctx.Canceled) || errors.Is(err, stdctx.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

// ExtractJSON isolates the first balanced top-level JSON object in raw,
// after stripping Markdown code fences. If no balanced object can be found,
// a conservative newline/tab sanitization pass is attempted once more
// before giving up. Returns an error rather than guessing if all steps fail.
func ExtractJSON(raw string) (string, error) {
	stripped := stripCodeFences(raw)

	if obj, ok := firstBalancedObject(stripped); ok {
		return obj, nil
	}

	sanitized := strings.ReplaceAll(stripped, "\n", " ")
	sanitized = strings.ReplaceAll(sanitized, "\t", " ")
	if obj, ok := firstBalancedObject(sanitized); ok {
		return obj, nil
	}

	return "", fmt.Errorf("llm: no balanced JSON object found in response")
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// firstBalancedObject scans s for the first top-level {...} block, tracking
// brace depth and skipping over string-literal content so braces inside
// quoted strings don't perturb the count.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
