// Package client provides a typed HTTP client for the Luma server API. It is
// the transport both terminal clients build on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumaproject/luma/internal/api"
)

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("luma api error %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err wraps an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client is a Luma API client. Token, when set, is sent as a bearer
// credential on every request; the server only requires it on the counsellor
// accept and message operations.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New creates a client for the given server base URL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs one HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp api.ErrorResponse
		_ = json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	return respBody, nil
}

func do[T any](c *Client, ctx context.Context, method, path string, reqBody any) (*T, error) {
	var raw []byte
	if reqBody != nil {
		var err error
		raw, err = json.Marshal(reqBody)
		if err != nil {
			return nil, err
		}
	}

	respBody, err := c.doRequest(ctx, method, path, raw)
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return &out, nil
}

// Query sends one chat turn to the triage chatbot.
func (c *Client) Query(ctx context.Context, message string) (*api.BotReply, error) {
	return do[api.BotReply](c, ctx, http.MethodPost, "/api/chatbot/query", api.BotQueryRequest{Message: message})
}

// Analyze returns the detailed classification of a message without a reply.
func (c *Client) Analyze(ctx context.Context, message string) (*api.AnalyzeResponse, error) {
	return do[api.AnalyzeResponse](c, ctx, http.MethodPost, "/api/chatbot/analyze", api.BotQueryRequest{Message: message})
}

// ChatbotHealth reports the classifier backing the chatbot.
func (c *Client) ChatbotHealth(ctx context.Context) (*api.ChatbotHealthResponse, error) {
	return do[api.ChatbotHealthResponse](c, ctx, http.MethodGet, "/api/chatbot/health", nil)
}

// StartSession creates a new anonymous session.
func (c *Client) StartSession(ctx context.Context, category string) (*api.StartSessionResponse, error) {
	return do[api.StartSessionResponse](c, ctx, http.MethodPost, "/api/counselees/session/start",
		map[string]string{"category": category})
}

// GetSession fetches one session by id. An unknown id is not an error; the
// response carries found=false.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*api.SessionResponse, error) {
	return do[api.SessionResponse](c, ctx, http.MethodGet, "/api/counselees/session/"+sessionID+"/", nil)
}

// SendMessage appends a counselee message to a session.
func (c *Client) SendMessage(ctx context.Context, sessionID, message string) error {
	_, err := do[api.StatusResponse](c, ctx, http.MethodPost,
		"/api/counselees/session/"+sessionID+"/message", api.SendMessageRequest{Message: message})
	return err
}

// GetMessages fetches the full authoritative log for a session.
func (c *Client) GetMessages(ctx context.Context, sessionID string) (*api.MessagesResponse, error) {
	return do[api.MessagesResponse](c, ctx, http.MethodGet, "/api/counselees/session/"+sessionID+"/messages", nil)
}

// EndSession marks a session ended.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	_, err := do[api.StatusResponse](c, ctx, http.MethodPost, "/api/counselees/session/"+sessionID+"/end", nil)
	return err
}

// Register registers a counsellor and stores the returned bearer token on the
// client for subsequent accept and message calls.
func (c *Client) Register(ctx context.Context, req api.RegisterCounsellorRequest) (*api.Counsellor, error) {
	counsellor, err := do[api.Counsellor](c, ctx, http.MethodPost, "/api/counsellors/register", req)
	if err != nil {
		return nil, err
	}
	c.Token = counsellor.Token
	return counsellor, nil
}

// ListCounsellors lists counsellors with the given status ("approved" when
// empty).
func (c *Client) ListCounsellors(ctx context.Context, status string) (*api.CounsellorsResponse, error) {
	path := "/api/counsellors/"
	if status != "" {
		path += "?status=" + status
	}
	return do[api.CounsellorsResponse](c, ctx, http.MethodGet, path, nil)
}

// AvailableSessions fetches the current pool of waiting sessions.
func (c *Client) AvailableSessions(ctx context.Context) (*api.AvailableSessionsResponse, error) {
	return do[api.AvailableSessionsResponse](c, ctx, http.MethodGet, "/api/counsellors/sessions/available", nil)
}

// AcceptSession claims a waiting session. A session already claimed by
// another counsellor yields an APIError with status 409.
func (c *Client) AcceptSession(ctx context.Context, sessionID string) (*api.AcceptSessionResponse, error) {
	return do[api.AcceptSessionResponse](c, ctx, http.MethodPost,
		"/api/counsellors/sessions/"+sessionID+"/accept", nil)
}

// SendCounsellorMessage appends a counsellor reply to an assigned session.
func (c *Client) SendCounsellorMessage(ctx context.Context, sessionID, message string) error {
	_, err := do[api.StatusResponse](c, ctx, http.MethodPost,
		"/api/counsellors/sessions/"+sessionID+"/message", api.SendMessageRequest{Message: message})
	return err
}
