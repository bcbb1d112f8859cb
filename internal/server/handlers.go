package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lumaproject/luma/internal/api"
	"github.com/lumaproject/luma/internal/store"
	"github.com/lumaproject/luma/pkg/logger"
	"github.com/lumaproject/luma/pkg/metrics"
)

type contextKey string

const counsellorContextKey contextKey = "counsellor"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

// requireCounsellor resolves the Authorization bearer token to a registered
// counsellor and stores it on the request context.
func (s *Server) requireCounsellor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		c, err := s.store.CounsellorByToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrCounsellorNotFound) {
				writeError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
			s.log.Error("Failed to resolve counsellor token", logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		ctx := context.WithValue(r.Context(), counsellorContextKey, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func counsellorFromContext(ctx context.Context) *store.Counsellor {
	c, _ := ctx.Value(counsellorContextKey).(*store.Counsellor)
	return c
}

// handleChatbotQuery classifies one chat turn. Classification failures never
// fail the exchange: the bot answers with a fallback reply instead.
func (s *Server) handleChatbotQuery(w http.ResponseWriter, r *http.Request) {
	var req api.BotQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Classifier.Timeout)
	defer cancel()

	reply, err := s.classifier.Classify(ctx, req.Message)
	if err != nil {
		s.log.Error("Classification failed", logger.ErrorField(err))
		writeJSON(w, http.StatusOK, api.BotReply{
			Reply:            "I'm having a brief technical issue, but I'm still here to help! What would you like to talk about?",
			Sentiment:        api.Sentiment{Label: "neutral", Confidence: 0.5},
			Category:         "general",
			CrisisLevel:      api.CrisisLow,
			SuggestedActions: []string{api.ActionContinueConversation},
		})
		return
	}

	if reply.CrisisLevel == api.CrisisHigh {
		s.metrics.IncrementSessionCounter(metrics.SessionMetricCrisisFlagged)
		s.log.Warn("Crisis-level message classified",
			logger.StringField("category", reply.Category))
	}

	writeJSON(w, http.StatusOK, reply)
}

// handleChatbotAnalyze returns the classification of one message without a
// conversational reply. Unlike query, a classification failure here is an
// error: there is no transcript to keep consistent.
func (s *Server) handleChatbotAnalyze(w http.ResponseWriter, r *http.Request) {
	var req api.BotQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Classifier.Timeout)
	defer cancel()

	reply, err := s.classifier.Classify(ctx, req.Message)
	if err != nil {
		s.log.Error("Analysis failed", logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "analysis service temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, api.AnalyzeResponse{
		Message:          req.Message,
		Sentiment:        reply.Sentiment,
		Category:         reply.Category,
		CrisisLevel:      reply.CrisisLevel,
		SuggestedActions: reply.SuggestedActions,
	})
}

func (s *Server) handleChatbotHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.ChatbotHealthResponse{
		Status:   "ok",
		Provider: s.classifier.Name(),
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	// An empty body is fine; category is optional.
	_ = json.NewDecoder(r.Body).Decode(&req)

	session, err := s.store.CreateSession(r.Context(), req.Category)
	if err != nil {
		s.log.Error("Failed to create session", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.metrics.IncrementSessionCounter(metrics.SessionMetricRequested)
	s.log.Info("Session created", logger.SessionIDField(session.ID))

	writeJSON(w, http.StatusOK, api.StartSessionResponse{SessionID: session.ID})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	session, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrSessionNotFound) {
		writeJSON(w, http.StatusOK, api.SessionResponse{Found: false})
		return
	}
	if err != nil {
		s.log.Error("Failed to get session", logger.ErrorField(err), logger.SessionIDField(id))
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, api.SessionResponse{
		Found:     true,
		SessionID: session.ID,
		CreatedAt: session.CreatedAt.Unix(),
		Status:    session.Status(),
	})
}

func (s *Server) handleCounseleeMessage(w http.ResponseWriter, r *http.Request) {
	s.appendSessionMessage(w, r, api.SenderCounselee)
}

// handleCounsellorMessage appends a counsellor reply. The session must be
// assigned to the authenticated counsellor.
func (s *Server) handleCounsellorMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	c := counsellorFromContext(r.Context())

	session, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.log.Error("Failed to get session", logger.ErrorField(err), logger.SessionIDField(id))
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	if session.CounsellorID != c.ID {
		writeError(w, http.StatusForbidden, "session is not assigned to this counsellor")
		return
	}

	s.appendSessionMessage(w, r, api.SenderCounsellor)
}

func (s *Server) appendSessionMessage(w http.ResponseWriter, r *http.Request, sender string) {
	id := chi.URLParam(r, "sessionID")

	var req api.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	_, err := s.store.AppendMessage(r.Context(), id, sender, req.Message)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, store.ErrSessionEnded):
		writeError(w, http.StatusConflict, "session has ended")
		return
	case err != nil:
		s.log.Error("Failed to append message", logger.ErrorField(err), logger.SessionIDField(id))
		writeError(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "sent"})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	msgs, err := s.store.ListMessages(r.Context(), id)
	if errors.Is(err, store.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.log.Error("Failed to list messages", logger.ErrorField(err), logger.SessionIDField(id))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	out := api.MessagesResponse{Messages: make([]api.Message, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, api.Message{
			Sender:    m.Sender,
			Text:      m.Text,
			Timestamp: m.Timestamp.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	err := s.store.EndSession(r.Context(), id)
	if errors.Is(err, store.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.log.Error("Failed to end session", logger.ErrorField(err), logger.SessionIDField(id))
		writeError(w, http.StatusInternalServerError, "failed to end session")
		return
	}

	s.metrics.IncrementSessionCounter(metrics.SessionMetricEnded)
	s.log.Info("Session ended", logger.SessionIDField(id))

	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "ended"})
}

func (s *Server) handleRegisterCounsellor(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterCounsellorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		writeError(w, http.StatusBadRequest, "display_name is required")
		return
	}
	if len(req.Categories) == 0 {
		writeError(w, http.StatusBadRequest, "at least one category is required")
		return
	}
	if len(req.Languages) == 0 {
		writeError(w, http.StatusBadRequest, "at least one language is required")
		return
	}

	c, err := s.store.RegisterCounsellor(r.Context(), store.Counsellor{
		DisplayName: req.DisplayName,
		Categories:  req.Categories,
		Languages:   req.Languages,
		Bio:         req.Bio,
	})
	if err != nil {
		s.log.Error("Failed to register counsellor", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to register counsellor")
		return
	}

	s.log.Info("Counsellor registered", logger.StringField("counsellor_id", c.ID))

	writeJSON(w, http.StatusCreated, api.Counsellor{
		ID:          c.ID,
		DisplayName: c.DisplayName,
		Categories:  c.Categories,
		Languages:   c.Languages,
		Bio:         c.Bio,
		Status:      c.Status,
		Token:       c.Token,
	})
}

func (s *Server) handleListCounsellors(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "approved"
	}

	listed, err := s.store.ListCounsellors(r.Context(), status)
	if err != nil {
		s.log.Error("Failed to list counsellors", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to list counsellors")
		return
	}

	out := api.CounsellorsResponse{Counsellors: make([]api.Counsellor, 0, len(listed))}
	for _, c := range listed {
		out.Counsellors = append(out.Counsellors, api.Counsellor{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Categories:  c.Categories,
			Languages:   c.Languages,
			Bio:         c.Bio,
			Status:      c.Status,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListAvailableSessions serves the availability feed. It never returns
// 5xx for an empty pool; background polls must not error the foreground.
func (s *Server) handleListAvailableSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListAvailableSessions(r.Context())
	if err != nil {
		s.log.Error("Failed to list available sessions", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	now := s.now()
	out := api.AvailableSessionsResponse{Sessions: make([]api.AvailableSession, 0, len(sessions))}
	for _, session := range sessions {
		category := session.Category
		if category == "" {
			category = "General"
		}
		out.Sessions = append(out.Sessions, api.AvailableSession{
			SessionID:   session.ID,
			CreatedAt:   session.CreatedAt.Unix(),
			Category:    category,
			WaitingSecs: int64(now.Sub(session.CreatedAt).Seconds()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAcceptSession atomically claims a session for the authenticated
// counsellor. A second claim conflicts with 409. On success a system marker
// is appended to the session log so the counselee observes the transition.
func (s *Server) handleAcceptSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	c := counsellorFromContext(r.Context())

	err := s.store.AssignSession(r.Context(), id, c.ID)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, store.ErrSessionTaken):
		writeError(w, http.StatusConflict, "session already assigned")
		return
	case errors.Is(err, store.ErrSessionEnded):
		writeError(w, http.StatusConflict, "session has ended")
		return
	case err != nil:
		s.log.Error("Failed to accept session", logger.ErrorField(err), logger.SessionIDField(id))
		writeError(w, http.StatusInternalServerError, "failed to accept session")
		return
	}

	if _, err := s.store.AppendMessage(r.Context(), id, api.SenderSystem, api.CounsellorJoinedText); err != nil {
		s.log.Error("Failed to append join marker", logger.ErrorField(err), logger.SessionIDField(id))
	}

	s.metrics.IncrementSessionCounter(metrics.SessionMetricAccepted)
	s.log.Info("Session accepted",
		logger.SessionIDField(id),
		logger.StringField("counsellor_id", c.ID))

	writeJSON(w, http.StatusOK, api.AcceptSessionResponse{Status: "accepted", SessionID: id})
}
