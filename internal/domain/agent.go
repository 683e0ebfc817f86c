// Package domain contains core domain types for the estatepost application.
package domain

import (
	"time"
)

// Agent is an operator whose Facebook Page receives generated posts.
type Agent struct {
	AgentID   string              `json:"agent_id"`
	Facebook  *FacebookConnection `json:"facebook,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// FacebookConnection is the stored OAuth state for one agent. Tokens are
// kept encrypted.
type FacebookConnection struct {
	UserToken    string    `json:"-"`
	TokenExpires time.Time `json:"token_expires"`
	LastUpdated  time.Time `json:"last_updated"`
	PageID       string    `json:"page_id,omitempty"`
	PageName     string    `json:"page_name,omitempty"`
	PageToken    string    `json:"-"`
	ConnectedAt  time.Time `json:"connected_at,omitempty"`
}

// HasPage returns true once a page has been selected.
func (c *FacebookConnection) HasPage() bool {
	return c != nil && c.PageID != ""
}

// TokenTTL returns the time until the user token expires.
// Returns 0 if it has already expired.
func (c *FacebookConnection) TokenTTL(now time.Time) time.Duration {
	if c == nil || c.TokenExpires.IsZero() {
		return 0
	}
	ttl := c.TokenExpires.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// PagePost records a post published to an agent's page feed.
type PagePost struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"-"`
	Text      string    `json:"text"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
