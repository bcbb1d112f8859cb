// Package classifier implements the triage classification boundary: every
// chat turn is classified into sentiment, concern category, crisis level and
// suggested actions, and answered with a supportive reply.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumaproject/luma/internal/api"
	"github.com/lumaproject/luma/pkg/logger"
)

// Classifier classifies one chat turn and produces the bot's reply.
type Classifier interface {
	// Name returns the provider name backing this classifier.
	Name() string

	// Classify analyzes the message and returns the full bot reply.
	Classify(ctx context.Context, message string) (*api.BotReply, error)
}

// New selects a classifier implementation by provider name. The keyword
// classifier is the default and needs no credentials.
func New(provider, apiKey, model string, log logger.Logger) (Classifier, error) {
	switch strings.ToLower(provider) {
	case "", "keyword":
		return NewKeyword(), nil
	case "openai":
		return NewOpenAI(apiKey, model, log)
	case "anthropic":
		return NewAnthropic(apiKey, model, log)
	default:
		return nil, fmt.Errorf("unknown classifier provider: %s", provider)
	}
}

// parseReply decodes an LLM completion into a BotReply. Models sometimes wrap
// JSON in markdown fences; strip those before decoding.
func parseReply(raw string) (*api.BotReply, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var reply api.BotReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("failed to decode classification: %w", err)
	}
	if reply.Reply == "" {
		return nil, fmt.Errorf("classification missing reply text")
	}
	switch reply.CrisisLevel {
	case api.CrisisNone, api.CrisisLow, api.CrisisMedium, api.CrisisHigh:
	default:
		return nil, fmt.Errorf("unknown crisis level: %q", reply.CrisisLevel)
	}
	if reply.SuggestedActions == nil {
		reply.SuggestedActions = []string{}
	}
	return &reply, nil
}

// systemPrompt instructs an LLM-backed classifier to produce the same JSON
// shape the keyword classifier emits.
const systemPrompt = `You are LumaBot, the triage assistant of an anonymous peer-support
platform. For every user message respond with ONLY a JSON object, no prose, with
these fields:
  "reply": a short compassionate response to the user,
  "sentiment": {"sentiment": "positive"|"neutral"|"negative", "confidence": 0.0-1.0, "intensity": "low"|"medium"|"high"},
  "category": "mental_health"|"relationships"|"academic"|"career"|"family"|"general",
  "crisis_level": "none"|"low"|"medium"|"high",
  "suggested_actions": array of tags from ["immediate_crisis_support","emergency_session","session_prompt","recommended_session","optional_session","continue_conversation","explore_topics","category_match"].
Use crisis_level "high" and the crisis support actions only for messages
indicating self-harm or suicidal intent. Suggest "recommended_session" or
"session_prompt" when a conversation with a trained volunteer counsellor would
help.`
