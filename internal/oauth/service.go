// Package oauth manages agents' Facebook connections: the OAuth flow, the
// encrypted user and page tokens, and publishing to a connected page.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/estatepost/internal/domain"
	"github.com/ashureev/estatepost/internal/facebook"
	"github.com/ashureev/estatepost/internal/secret"
	"github.com/ashureev/estatepost/internal/store"
)

// Connection states reported by VerifyConnection.
const (
	StatusConnected      = "connected"
	StatusDisconnected   = "disconnected"
	StatusNoPageSelected = "no_page_selected"
)

// StatusPostLimit caps the post history returned by Status.
const StatusPostLimit = 50

// expiryWarning is how close to expiry a user token gets logged.
const expiryWarning = 7 * 24 * time.Hour

var (
	// ErrInvalidRequest marks input that fails validation.
	ErrInvalidRequest = errors.New("oauth: invalid request")

	// ErrExchangeFailed is returned when Facebook rejects the OAuth code.
	ErrExchangeFailed = errors.New("oauth: facebook token exchange failed")

	// ErrNoPages is returned when the user manages no pages.
	ErrNoPages = errors.New("oauth: no Facebook pages found with required permissions")

	// ErrNotConnected is returned when an agent has no usable page connection.
	ErrNotConnected = errors.New("oauth: no Facebook page connected")

	// ErrMissingPageToken is returned when a page is selected but its token is absent.
	ErrMissingPageToken = errors.New("oauth: missing page access token")

	// ErrPublishFailed wraps Graph failures while posting to a page.
	ErrPublishFailed = errors.New("oauth: failed to post to Facebook page")
)

// Graph is the subset of the Graph API the service needs.
type Graph interface {
	LoginURL(state string) string
	ExchangeCode(ctx context.Context, code string) (facebook.Token, error)
	Pages(ctx context.Context, userToken string) ([]facebook.Page, error)
	PublishFeed(ctx context.Context, pageID, pageToken, message, link string) (facebook.FeedPost, error)
	RevokePermissions(ctx context.Context, userToken string) error
}

// TokenData describes the stored user token returned from the callback.
type TokenData struct {
	Status         string    `json:"status"`
	EncryptedToken string    `json:"encrypted_token"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// CallbackResult is returned after a successful OAuth callback.
type CallbackResult struct {
	Status    string          `json:"status"`
	TokenData TokenData       `json:"token_data"`
	Pages     []facebook.Page `json:"pages"`
}

// SelectPageRequest is the page chosen by the agent.
type SelectPageRequest struct {
	AgentID   string
	PageID    string
	PageName  string
	PageToken string
}

// SelectPageResult confirms the stored page.
type SelectPageResult struct {
	Status   string `json:"status"`
	PageID   string `json:"page_id"`
	PageName string `json:"page_name"`
}

// Connection is the result of VerifyConnection.
type Connection struct {
	Status      string     `json:"status"`
	Detail      string     `json:"detail,omitempty"`
	PageID      string     `json:"page_id,omitempty"`
	PageName    string     `json:"page_name,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// StatusReport summarises an agent's connection and post history.
type StatusReport struct {
	Connected bool              `json:"connected"`
	PageID    string            `json:"page_id,omitempty"`
	PageName  string            `json:"page_name,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Posts     []domain.PagePost `json:"posts,omitempty"`
}

// PublishedPost describes a post created through PublishPost.
type PublishedPost struct {
	PostID      string `json:"post_id"`
	URL         string `json:"url"`
	CreatedTime string `json:"created_time,omitempty"`
}

// Service implements the Facebook connection lifecycle for agents.
type Service struct {
	graph  Graph
	repo   store.Repository
	cipher *secret.Cipher
	now    func() time.Time
}

// NewService creates a Service.
func NewService(graph Graph, repo store.Repository, cipher *secret.Cipher) *Service {
	return &Service{graph: graph, repo: repo, cipher: cipher, now: time.Now}
}

// ConnectURL returns the OAuth dialog URL carrying agentID as state.
func (s *Service) ConnectURL(agentID string) (string, error) {
	if strings.TrimSpace(agentID) == "" {
		return "", fmt.Errorf("%w: agent ID is required", ErrInvalidRequest)
	}
	return s.graph.LoginURL(agentID), nil
}

// HandleCallback exchanges code for a long-lived token, stores it for the
// agent named by state and lists the pages it can manage.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (*CallbackResult, error) {
	if len(code) < 10 || state == "" {
		return nil, fmt.Errorf("%w: missing required parameters", ErrInvalidRequest)
	}

	tok, err := s.graph.ExchangeCode(ctx, code)
	if err != nil {
		slog.Error("Token exchange failed", "agent_id", state, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	enc, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt user token: %w", err)
	}
	if err := s.repo.SaveUserToken(ctx, state, enc, tok.ExpiresAt); err != nil {
		return nil, fmt.Errorf("save user token: %w", err)
	}

	pages, err := s.graph.Pages(ctx, tok.AccessToken)
	if err != nil {
		slog.Error("Failed to get pages", "agent_id", state, "error", err)
		pages = nil
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	slog.Info("Facebook account connected", "agent_id", state, "pages", len(pages))
	return &CallbackResult{
		Status: "success",
		TokenData: TokenData{
			Status:         "success",
			EncryptedToken: enc,
			ExpiresAt:      tok.ExpiresAt,
		},
		Pages: pages,
	}, nil
}

// SelectPage stores the agent's chosen page with its encrypted token.
func (s *Service) SelectPage(ctx context.Context, req SelectPageRequest) (*SelectPageResult, error) {
	switch {
	case len(req.PageID) < 5:
		return nil, fmt.Errorf("%w: page_id is required", ErrInvalidRequest)
	case req.PageName == "":
		return nil, fmt.Errorf("%w: page_name is required", ErrInvalidRequest)
	case len(req.PageToken) < 10:
		return nil, fmt.Errorf("%w: page_token is required", ErrInvalidRequest)
	case req.AgentID == "":
		return nil, fmt.Errorf("%w: agent_id is required", ErrInvalidRequest)
	}

	enc, err := s.cipher.Encrypt(req.PageToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt page token: %w", err)
	}
	if err := s.repo.SetPage(ctx, req.AgentID, req.PageID, req.PageName, enc); err != nil {
		return nil, err
	}

	slog.Info("Facebook page selected", "agent_id", req.AgentID, "page_id", req.PageID)
	return &SelectPageResult{Status: "success", PageID: req.PageID, PageName: req.PageName}, nil
}

// Disconnect revokes the agent's permissions and clears its stored
// Facebook data. A failed revoke is logged and does not block clearing.
func (s *Service) Disconnect(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("%w: agent_id is required", ErrInvalidRequest)
	}
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("get agent: %w", err)
	}
	if agent == nil || agent.Facebook == nil {
		return nil
	}

	if agent.Facebook.UserToken != "" {
		token, err := s.cipher.Decrypt(agent.Facebook.UserToken)
		if err != nil {
			slog.Warn("Cannot decrypt user token for revoke", "agent_id", agentID, "error", err)
		} else if err := s.graph.RevokePermissions(ctx, token); err != nil {
			slog.Warn("Permission revoke failed", "agent_id", agentID, "error", err)
		}
	}

	if err := s.repo.ClearFacebook(ctx, agentID); err != nil {
		return fmt.Errorf("clear facebook: %w", err)
	}
	slog.Info("Facebook disconnected", "agent_id", agentID)
	return nil
}

// VerifyConnection reports whether the agent has a usable page connection.
func (s *Service) VerifyConnection(ctx context.Context, agentID string) (*Connection, error) {
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if agent == nil {
		return nil, store.ErrAgentNotFound
	}

	conn := agent.Facebook
	switch {
	case conn == nil:
		return &Connection{Status: StatusDisconnected, Detail: "No Facebook connection found"}, nil
	case !conn.HasPage():
		return &Connection{Status: StatusNoPageSelected, Detail: "Connected but no page selected"}, nil
	case conn.PageToken == "":
		return nil, ErrMissingPageToken
	}

	out := &Connection{Status: StatusConnected, PageID: conn.PageID, PageName: conn.PageName}
	if !conn.ConnectedAt.IsZero() {
		at := conn.ConnectedAt
		out.ConnectedAt = &at
	}
	return out, nil
}

// Status returns the connection summary and recent posts for an agent.
func (s *Service) Status(ctx context.Context, agentID string) (*StatusReport, error) {
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if agent == nil || agent.Facebook == nil {
		return &StatusReport{Connected: false}, nil
	}

	posts, err := s.repo.ListPosts(ctx, agentID, StatusPostLimit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	report := &StatusReport{
		Connected: true,
		PageID:    agent.Facebook.PageID,
		PageName:  agent.Facebook.PageName,
		Posts:     posts,
	}
	if !agent.Facebook.TokenExpires.IsZero() {
		exp := agent.Facebook.TokenExpires
		report.ExpiresAt = &exp
		if ttl := agent.Facebook.TokenTTL(s.now()); ttl < expiryWarning {
			slog.Warn("Facebook user token expiring", "agent_id", agentID, "ttl", ttl)
		}
	}
	return report, nil
}

// PageCredentials returns the agent's page id and decrypted page token.
func (s *Service) PageCredentials(ctx context.Context, agentID string) (pageID, pageToken string, err error) {
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		return "", "", fmt.Errorf("get agent: %w", err)
	}
	if agent == nil {
		return "", "", store.ErrAgentNotFound
	}
	if !agent.Facebook.HasPage() {
		return "", "", ErrNotConnected
	}
	if agent.Facebook.PageToken == "" {
		return "", "", ErrMissingPageToken
	}

	token, err := s.cipher.Decrypt(agent.Facebook.PageToken)
	if err != nil {
		return "", "", fmt.Errorf("decrypt page token: %w", err)
	}
	return agent.Facebook.PageID, token, nil
}

// PublishPost posts text, with an optional link, to the agent's page feed
// and records it in the agent's post history.
func (s *Service) PublishPost(ctx context.Context, agentID, text, link string) (*PublishedPost, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: post text is required", ErrInvalidRequest)
	}
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", ErrInvalidRequest)
	}

	pageID, token, err := s.PageCredentials(ctx, agentID)
	if err != nil {
		return nil, err
	}

	post, err := s.graph.PublishFeed(ctx, pageID, token, text, link)
	if err != nil {
		slog.Error("Facebook posting failed", "agent_id", agentID, "page_id", pageID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	url := "https://facebook.com/" + post.PostID
	record := &domain.PagePost{
		ID:        post.ID,
		AgentID:   agentID,
		Text:      text,
		URL:       url,
		CreatedAt: s.now(),
	}
	if err := s.repo.AddPost(ctx, record); err != nil {
		// The post is live; only the history entry is lost.
		slog.Error("Failed to record post", "agent_id", agentID, "post_id", post.ID, "error", err)
	}

	return &PublishedPost{PostID: post.ID, URL: url, CreatedTime: post.CreatedTime}, nil
}
