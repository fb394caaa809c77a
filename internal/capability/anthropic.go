package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicReasoner is the production Reasoner backed by the Anthropic
// Messages API.
type AnthropicReasoner struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *logrus.Entry
}

// NewAnthropicReasoner creates a Reasoner for the given model. The API key
// comes from the caller (typically read from the environment named in
// moot.yml), never from package-level state.
func NewAnthropicReasoner(apiKey, model string, log *logrus.Entry) *AnthropicReasoner {
	return &AnthropicReasoner{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: anthropicDefaultMaxTokens,
		log:       log.WithField("component", "reasoner.anthropic"),
	}
}

// Complete sends a single-turn prompt and returns the concatenated text
// blocks of the reply. Deadline expiry maps to ErrTimeout.
func (r *AnthropicReasoner) Complete(ctx context.Context, req Request) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := r.client.Messages.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformed)
	}

	r.log.WithFields(logrus.Fields{
		"model": string(r.model),
		"chars": len(text),
	}).Debug("completion received")

	return text, nil
}
