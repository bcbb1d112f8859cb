package classifier

import (
	"context"
	"math/rand"
	"strings"

	"github.com/lumaproject/luma/internal/api"
)

// Keyword is a deterministic rule-based classifier. It matches crisis,
// greeting, mental-health, positive and help-seeking phrases, scores the
// concern category and picks a reply from a canned pool. It is the default
// provider and the fallback when an LLM returns malformed output.
type Keyword struct {
	pick func(n int) int
}

// NewKeyword creates a keyword classifier with randomized reply selection.
func NewKeyword() *Keyword {
	return &Keyword{pick: rand.Intn}
}

// Name returns the provider name.
func (k *Keyword) Name() string {
	return "keyword"
}

var (
	crisisKeywords = []string{
		"suicide", "kill myself", "end it all", "hurt myself", "want to die", "no point",
	}
	greetingKeywords = []string{
		"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	}
	mentalHealthKeywords = []string{
		"anxiety", "depression", "stress", "panic", "worried", "sad", "overwhelmed",
	}
	positiveKeywords = []string{
		"good", "great", "happy", "fine", "okay", "well", "better",
	}
	helpKeywords = []string{
		"help", "support", "assistance", "need",
	}

	categoryKeywords = map[string][]string{
		"mental_health": {
			"anxiety", "depression", "stress", "panic", "worried", "sad",
			"overwhelmed", "mental health", "therapy", "counseling", "mood",
		},
		"relationships": {
			"relationship", "partner", "boyfriend", "girlfriend", "marriage",
			"divorce", "breakup", "friends", "love", "dating",
		},
		"academic": {
			"school", "college", "university", "grades", "exam", "study",
			"homework", "academic", "education", "learning", "student",
		},
		"career": {
			"job", "work", "career", "employment", "boss", "workplace",
			"interview", "resume", "professional", "office", "salary",
		},
		"family": {
			"parents", "mother", "father", "siblings", "children", "family",
			"home", "household", "domestic", "parenting",
		},
	}

	greetingReplies = []string{
		"Hi! I'm LumaBot. I'm here to listen and help. What's on your mind?",
		"Hello! I'm LumaBot, your companion here. How are you feeling today?",
		"Hey there! I'm LumaBot. I'm here to support you. What would you like to talk about?",
	}
	crisisReplies = []string{
		"I'm very concerned about what you've shared. Please reach out for immediate help: call 988 (Suicide Prevention Lifeline) or text 'HELLO' to 741741. Let me also connect you with emergency support here.",
		"Your safety is the most important thing. Please contact crisis support immediately: 988 or text 741741. I'm also here to help connect you with a counsellor right away.",
	}
	mentalHealthReplies = []string{
		"I hear you're dealing with something difficult. Mental health challenges are real and valid. I'm here to listen and help connect you with support.",
		"Thank you for sharing about your mental health. It takes courage to reach out. Let me help you find the right support.",
	}
	positiveReplies = []string{
		"I'm glad you're reaching out! Even when things are going well, it's great to have support. How can I help you today?",
		"That's wonderful to hear! What would you like to explore or talk about?",
	}
	helpReplies = []string{
		"I'm here to help connect you with volunteer counsellors who specialize in mental health, relationships, academics, and more. What's been on your mind?",
		"I can help you find the right support for whatever you're going through. Tell me a bit about your situation.",
	}
	sessionReplies = []string{
		"I think talking with one of our trained counsellors would be really beneficial. Would you like me to start an anonymous session for you?",
		"Based on what you've shared, connecting with a trained counsellor sounds like a great next step. Shall we get you connected?",
	}
	defaultReplies = []string{
		"Thank you for sharing with me. I'm here to listen and help you find the right support. Could you tell me more about how you're feeling?",
		"I'm here to support you. What's been weighing on your mind lately?",
		"I want to make sure I understand what you're going through. Could you tell me a bit more?",
	}
)

// Classify applies the rule table. It never fails.
func (k *Keyword) Classify(_ context.Context, message string) (*api.BotReply, error) {
	text := strings.ToLower(strings.TrimSpace(message))

	if text == "" {
		return &api.BotReply{
			Reply:            "I'm here to listen. What would you like to talk about?",
			Sentiment:        api.Sentiment{Label: "neutral", Confidence: 0.5},
			Category:         "general",
			CrisisLevel:      api.CrisisLow,
			SuggestedActions: []string{api.ActionContinueConversation},
		}, nil
	}

	// Crisis detection takes priority over everything else.
	if containsAny(text, crisisKeywords) {
		return &api.BotReply{
			Reply:            k.choose(crisisReplies),
			Sentiment:        api.Sentiment{Label: "negative", Confidence: 0.9, Intensity: "high"},
			Category:         "mental_health",
			CrisisLevel:      api.CrisisHigh,
			SuggestedActions: []string{api.ActionImmediateCrisis, api.ActionEmergencySession},
		}, nil
	}

	if isGreeting(text) {
		return &api.BotReply{
			Reply:            k.choose(greetingReplies),
			Sentiment:        api.Sentiment{Label: "neutral", Confidence: 0.7},
			Category:         "general",
			CrisisLevel:      api.CrisisLow,
			SuggestedActions: []string{api.ActionContinueConversation},
		}, nil
	}

	if containsAny(text, mentalHealthKeywords) {
		return &api.BotReply{
			Reply:            k.choose(mentalHealthReplies) + "\n\n" + k.choose(sessionReplies),
			Sentiment:        api.Sentiment{Label: "negative", Confidence: 0.8, Intensity: "medium"},
			Category:         "mental_health",
			CrisisLevel:      api.CrisisMedium,
			SuggestedActions: []string{api.ActionRecommendedSession, api.ActionCategoryMatch},
		}, nil
	}

	if containsAny(text, positiveKeywords) {
		return &api.BotReply{
			Reply:            k.choose(positiveReplies),
			Sentiment:        api.Sentiment{Label: "positive", Confidence: 0.7},
			Category:         "general",
			CrisisLevel:      api.CrisisLow,
			SuggestedActions: []string{api.ActionExploreTopics, api.ActionOptionalSession},
		}, nil
	}

	if containsAny(text, helpKeywords) {
		return &api.BotReply{
			Reply:            k.choose(helpReplies),
			Sentiment:        api.Sentiment{Label: "neutral", Confidence: 0.6},
			Category:         categorize(text),
			CrisisLevel:      api.CrisisLow,
			SuggestedActions: []string{api.ActionContinueConversation, api.ActionOptionalSession},
		}, nil
	}

	// Default: no bucket matched; a scored category still warrants suggesting
	// a session with a matching counsellor.
	category := categorize(text)
	if category != "general" {
		return &api.BotReply{
			Reply:            k.choose(defaultReplies) + "\n\n" + k.choose(sessionReplies),
			Sentiment:        api.Sentiment{Label: "neutral", Confidence: 0.5},
			Category:         category,
			CrisisLevel:      api.CrisisLow,
			SuggestedActions: []string{api.ActionRecommendedSession, api.ActionCategoryMatch},
		}, nil
	}

	return &api.BotReply{
		Reply:            k.choose(defaultReplies),
		Sentiment:        api.Sentiment{Label: "neutral", Confidence: 0.5},
		Category:         "general",
		CrisisLevel:      api.CrisisLow,
		SuggestedActions: []string{api.ActionContinueConversation},
	}, nil
}

func (k *Keyword) choose(pool []string) string {
	return pool[k.pick(len(pool))]
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// isGreeting matches exact greetings or messages starting with one, so words
// like "this" do not match "hi".
func isGreeting(text string) bool {
	for _, g := range greetingKeywords {
		if text == g || strings.HasPrefix(text, g+" ") || strings.HasPrefix(text, g+",") || strings.HasPrefix(text, g+"!") {
			return true
		}
	}
	return false
}

// categorize scores each concern category by keyword hits and returns the
// best match, or "general" when nothing matches.
func categorize(text string) string {
	best := "general"
	bestScore := 0
	for category, keywords := range categoryKeywords {
		score := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best = category
			bestScore = score
		}
	}
	return best
}
