package classifier

import (
	"context"
	"fmt"

	"github.com/lumaproject/luma/internal/api"
	"github.com/lumaproject/luma/pkg/logger"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI classifies chat turns with a GPT model. Malformed model output falls
// back to the keyword classifier so an exchange never fails on a bad
// completion.
type OpenAI struct {
	client   *openai.Client
	model    string
	fallback *Keyword
	log      logger.Logger
}

// NewOpenAI creates a new OpenAI-backed classifier.
func NewOpenAI(apiKey, model string, log logger.Logger) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &OpenAI{
		client:   &client,
		model:    model,
		fallback: NewKeyword(),
		log:      log,
	}, nil
}

// Name returns the provider name.
func (o *OpenAI) Name() string {
	return "openai"
}

// Classify sends the message to the model and decodes the JSON result.
func (o *OpenAI) Classify(ctx context.Context, message string) (*api.BotReply, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     o.model,
		MaxTokens: openai.Int(512),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		o.log.Warn("OpenAI returned no choices, falling back to keyword classifier")
		return o.fallback.Classify(ctx, message)
	}

	reply, err := parseReply(completion.Choices[0].Message.Content)
	if err != nil {
		o.log.Warn("Malformed OpenAI classification, falling back to keyword classifier",
			logger.ErrorField(err))
		return o.fallback.Classify(ctx, message)
	}
	return reply, nil
}
