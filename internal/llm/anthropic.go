package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"
)

// AnthropicClient adapts github.com/anthropics/anthropic-sdk-go to the
// Client capability, with retry-with-backoff for rate-limit and
// connection errors matching the Embed stage's retry policy (three
// attempts, initial delay 2s, cap 30s).
type AnthropicClient struct {
	sdk          anthropic.Client
	defaultModel string
}

// NewAnthropicClient builds a Client backed by the real Anthropic API.
func NewAnthropicClient(apiKey, defaultModel string) *AnthropicClient {
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}
	return &AnthropicClient{
		sdk:          anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

func (c *AnthropicClient) toSDKMessages(messages []Message) ([]anthropic.MessageParam, string) {
	var system strings.Builder
	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out, system.String()
}

// Generate performs a single, non-streaming completion.
func (c *AnthropicClient) Generate(ctx context.Context, messages []Message, params Params) (Result, error) {
	model := params.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := int64(params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	sdkMessages, system := c.toSDKMessages(messages)

	op := func() (Result, error) {
		reqParams := anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxTokens,
			Messages:  sdkMessages,
		}
		if system != "" {
			reqParams.System = []anthropic.TextBlockParam{{Text: system}}
		}
		msg, err := c.sdk.Messages.New(ctx, reqParams)
		if err != nil {
			cerr := classify(err)
			if !Retryable(cerr) {
				return Result{}, backoff.Permanent(cerr)
			}
			return Result{}, cerr
		}
		var text strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		result := Result{Text: text.String()}
		if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
			result.Usage = &Usage{
				InputTokens:  int(msg.Usage.InputTokens),
				OutputTokens: int(msg.Usage.OutputTokens),
			}
		}
		return result, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 30 * time.Second
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(3),
	)
}

// Stream runs Generate and delivers the whole response as a single
// terminal token on the returned channel; it does not stream partial
// increments from the API. It is not used by the Wiki Generator's sub-agents
// (which are one-shot per stage), but satisfies the Client capability for
// chat-style callers outside this module's scope.
func (c *AnthropicClient) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, <-chan error) {
	tokens := make(chan Token)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)
		result, err := c.Generate(ctx, messages, params)
		if err != nil {
			errs <- err
			return
		}
		select {
		case tokens <- Token{Text: result.Text, Done: true}:
		case <-ctx.Done():
		}
	}()

	return tokens, errs
}

// classify maps an SDK error to the llm error taxonomy so callers can
// decide retry vs. degrade vs. fatal without importing the SDK's own
// error types.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(msg, "context_length") || strings.Contains(msg, "too many tokens") || strings.Contains(msg, "maximum context length"):
		return fmt.Errorf("%w: %v", ErrContextExceeded, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "eof"):
		return fmt.Errorf("%w: %v", ErrConnection, err)
	default:
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
}
