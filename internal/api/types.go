// Package api defines the JSON wire contracts shared by the Luma server and
// its clients. Timestamps on the wire are server-side epoch seconds.
package api

// Message senders. The chatbot transcript uses bot/user; a live session log
// uses counselee/counsellor/system.
const (
	SenderCounselee  = "counselee"
	SenderCounsellor = "counsellor"
	SenderSystem     = "system"
	SenderBot        = "bot"
	SenderUser       = "user"
)

// Crisis levels produced by the classification boundary.
const (
	CrisisNone   = "none"
	CrisisLow    = "low"
	CrisisMedium = "medium"
	CrisisHigh   = "high"
)

// Suggested action tags that drive session escalation.
const (
	ActionSessionPrompt        = "session_prompt"
	ActionRecommendedSession   = "recommended_session"
	ActionImmediateCrisis      = "immediate_crisis_support"
	ActionEmergencySession     = "emergency_session"
	ActionContinueConversation = "continue_conversation"
	ActionOptionalSession      = "optional_session"
	ActionExploreTopics        = "explore_topics"
	ActionCategoryMatch        = "category_match"
)

// CounsellorJoinedText is the system marker the server appends to a session's
// log when a counsellor accepts. Counselee clients observe it (or any
// counsellor-sent message) to move from waiting to active.
const CounsellorJoinedText = "A counsellor has joined the session."

// Message is one entry in a session's ordered log.
type Message struct {
	Sender    string `json:"sender"`
	Text      string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// MessagesResponse is the full authoritative log for a session.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// SendMessageRequest appends one message to a session.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// StatusResponse acknowledges a state-changing request ("sent", "ended").
type StatusResponse struct {
	Status string `json:"status"`
}

// StartSessionResponse carries the opaque session identifier. No user
// identity is attached to it.
type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

// SessionResponse describes one session by id.
type SessionResponse struct {
	Found     bool   `json:"found"`
	SessionID string `json:"session_id,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Sentiment is the sentiment block of a bot reply.
type Sentiment struct {
	Label      string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Intensity  string  `json:"intensity,omitempty"`
}

// BotQueryRequest is one chat turn sent to the triage chatbot.
type BotQueryRequest struct {
	Message string `json:"message"`
}

// BotReply is the chatbot's classification result for one exchange.
type BotReply struct {
	Reply            string    `json:"reply"`
	Sentiment        Sentiment `json:"sentiment"`
	Category         string    `json:"category"`
	CrisisLevel      string    `json:"crisis_level"`
	SuggestedActions []string  `json:"suggested_actions"`
}

// AnalyzeResponse is the detailed classification of one message without a
// conversational reply, for debugging and monitoring.
type AnalyzeResponse struct {
	Message          string    `json:"message"`
	Sentiment        Sentiment `json:"sentiment_analysis"`
	Category         string    `json:"category"`
	CrisisLevel      string    `json:"crisis_level"`
	SuggestedActions []string  `json:"suggested_actions"`
}

// ChatbotHealthResponse reports the classifier backing the chatbot.
type ChatbotHealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}

// AvailableSession is one entry in the counsellor availability feed.
type AvailableSession struct {
	SessionID   string `json:"session_id"`
	CreatedAt   int64  `json:"created_at"`
	Category    string `json:"category"`
	WaitingSecs int64  `json:"waiting_time"`
}

// AvailableSessionsResponse is the current pool snapshot.
type AvailableSessionsResponse struct {
	Sessions []AvailableSession `json:"sessions"`
}

// AcceptSessionResponse acknowledges a successful claim.
type AcceptSessionResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// RegisterCounsellorRequest is the counsellor registration payload.
type RegisterCounsellorRequest struct {
	DisplayName string   `json:"display_name"`
	Categories  []string `json:"categories"`
	Languages   []string `json:"languages"`
	Bio         string   `json:"bio"`
}

// Counsellor is a registered counsellor as returned by the server. Token is
// only populated in the registration response; it is the bearer credential
// for accept and counsellor message operations.
type Counsellor struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Categories  []string `json:"categories"`
	Languages   []string `json:"languages"`
	Bio         string   `json:"bio"`
	Status      string   `json:"status"`
	Token       string   `json:"token,omitempty"`
}

// CounsellorsResponse lists registered counsellors.
type CounsellorsResponse struct {
	Counsellors []Counsellor `json:"counsellors"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
