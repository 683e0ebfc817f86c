// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ashureev/estatepost/internal/domain"
)

// ErrAgentNotFound is returned when an update targets an unknown agent.
var ErrAgentNotFound = errors.New("store: agent not found")

// Repository defines the interface for persisting agents, their Facebook
// connection and their published posts.
type Repository interface {
	// GetAgent retrieves an agent by id. It returns nil, nil when absent.
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)

	// SaveUserToken creates the agent if needed and stores its encrypted
	// long-lived user token.
	SaveUserToken(ctx context.Context, agentID, encToken string, expires time.Time) error

	// SetPage records the selected page and its encrypted token.
	SetPage(ctx context.Context, agentID, pageID, pageName, encPageToken string) error

	// ClearFacebook removes all Facebook data and post history for an agent.
	ClearFacebook(ctx context.Context, agentID string) error

	// AddPost records a published page post.
	AddPost(ctx context.Context, post *domain.PagePost) error

	// ListPosts returns an agent's posts, newest first. A non-positive limit
	// returns all of them.
	ListPosts(ctx context.Context, agentID string, limit int) ([]domain.PagePost, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// IsPostgresDSN reports whether dsn addresses a PostgreSQL server rather than
// a SQLite file.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// Open selects the backend from dsn: PostgreSQL for a connection URL or
// keyword string, SQLite for a file path.
func Open(dsn string) (Repository, error) {
	if IsPostgresDSN(dsn) {
		return NewPostgres(dsn)
	}
	return NewSQLite(dsn)
}
