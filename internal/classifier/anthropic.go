package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lumaproject/luma/internal/api"
	"github.com/lumaproject/luma/pkg/logger"
)

// Anthropic classifies chat turns with a Claude model. Malformed model output
// falls back to the keyword classifier.
type Anthropic struct {
	client   anthropic.Client
	model    string
	fallback *Keyword
	log      logger.Logger
}

// NewAnthropic creates a new Claude-backed classifier.
func NewAnthropic(apiKey, model string, log logger.Logger) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Anthropic{
		client:   client,
		model:    model,
		fallback: NewKeyword(),
		log:      log,
	}, nil
}

// Name returns the provider name.
func (a *Anthropic) Name() string {
	return "anthropic"
}

// Classify sends the message to the model and decodes the JSON result.
func (a *Anthropic) Classify(ctx context.Context, message string) (*api.BotReply, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(message)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		}
	}

	reply, err := parseReply(text.String())
	if err != nil {
		a.log.Warn("Malformed Claude classification, falling back to keyword classifier",
			logger.ErrorField(err))
		return a.fallback.Classify(ctx, message)
	}
	return reply, nil
}
