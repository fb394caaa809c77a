package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

// OpenAIReasoner is an alternate Reasoner backed by the OpenAI chat
// completions API, selected by the provider setting in moot.yml.
type OpenAIReasoner struct {
	client openai.Client
	model  openai.ChatModel
	log    *logrus.Entry
}

// NewOpenAIReasoner creates a Reasoner for the given model.
func NewOpenAIReasoner(apiKey, model string, log *logrus.Entry) *OpenAIReasoner {
	return &OpenAIReasoner{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModel(model),
		log:    log.WithField("component", "reasoner.openai"),
	}
}

// Complete sends a single-turn prompt and returns the reply text.
// Deadline expiry maps to ErrTimeout.
func (r *OpenAIReasoner) Complete(ctx context.Context, req Request) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    r.model,
		Messages: messages,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("openai completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformed)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformed)
	}

	r.log.WithFields(logrus.Fields{
		"model": string(r.model),
		"chars": len(text),
	}).Debug("completion received")

	return text, nil
}
