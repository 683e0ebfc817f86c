package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/estatepost/internal/domain"
	"github.com/ashureev/estatepost/internal/shared"
)

// sqlStore implements Repository over database/sql. Queries are written
// with ? placeholders and rebound for drivers that number them.
type sqlStore struct {
	db       *sql.DB
	numbered bool
	retry    bool
}

func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// withRetry retries fn with exponential backoff on SQLite lock conflicts.
func (s *sqlStore) withRetry(ctx context.Context, op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil || !s.retry || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("Database locked, retrying", "op", op, "attempt", i+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", op, maxRetries, err)
}

// Ping verifies database connectivity.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by id.
func (s *sqlStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	query := `
		SELECT agent_id, fb_user_token, fb_token_expires, fb_last_updated,
		       fb_page_id, fb_page_name, fb_page_token, fb_connected_at,
		       created_at, updated_at
		FROM agents WHERE agent_id = ?`

	var (
		agent                                  domain.Agent
		userToken, pageID, pageName, pageToken sql.NullString
		tokenExpires, lastUpdated, connectedAt sql.NullInt64
		createdAt, updatedAt                   int64
	)
	err := s.db.QueryRowContext(ctx, s.q(query), agentID).Scan(
		&agent.AgentID, &userToken, &tokenExpires, &lastUpdated,
		&pageID, &pageName, &pageToken, &connectedAt,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}

	agent.CreatedAt = time.Unix(createdAt, 0)
	agent.UpdatedAt = time.Unix(updatedAt, 0)

	if userToken.Valid || pageID.Valid {
		agent.Facebook = &domain.FacebookConnection{
			UserToken: userToken.String,
			PageID:    pageID.String,
			PageName:  pageName.String,
			PageToken: pageToken.String,
		}
		if tokenExpires.Valid {
			agent.Facebook.TokenExpires = time.Unix(tokenExpires.Int64, 0)
		}
		if lastUpdated.Valid {
			agent.Facebook.LastUpdated = time.Unix(lastUpdated.Int64, 0)
		}
		if connectedAt.Valid {
			agent.Facebook.ConnectedAt = time.Unix(connectedAt.Int64, 0)
		}
	}
	return &agent, nil
}

// SaveUserToken upserts the agent with its encrypted user token.
func (s *sqlStore) SaveUserToken(ctx context.Context, agentID, encToken string, expires time.Time) error {
	query := `
	INSERT INTO agents (agent_id, fb_user_token, fb_token_expires, fb_last_updated, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(agent_id) DO UPDATE SET
		fb_user_token = excluded.fb_user_token,
		fb_token_expires = excluded.fb_token_expires,
		fb_last_updated = excluded.fb_last_updated,
		updated_at = excluded.updated_at`

	now := time.Now().Unix()
	return s.withRetry(ctx, "save user token", func() error {
		if _, err := s.db.ExecContext(ctx, s.q(query), agentID, encToken, expires.Unix(), now, now, now); err != nil {
			return fmt.Errorf("save user token: %w", err)
		}
		return nil
	})
}

// SetPage records the selected page for an existing agent.
func (s *sqlStore) SetPage(ctx context.Context, agentID, pageID, pageName, encPageToken string) error {
	query := `
	UPDATE agents SET fb_page_id = ?, fb_page_name = ?, fb_page_token = ?,
		fb_connected_at = ?, updated_at = ?
	WHERE agent_id = ?`

	now := time.Now().Unix()
	return s.withRetry(ctx, "set page", func() error {
		res, err := s.db.ExecContext(ctx, s.q(query), pageID, pageName, encPageToken, now, now, agentID)
		if err != nil {
			return fmt.Errorf("set page: %w", err)
		}
		return expectRows(res, agentID)
	})
}

// ClearFacebook removes Facebook fields and posts for an agent.
func (s *sqlStore) ClearFacebook(ctx context.Context, agentID string) error {
	query := `
	UPDATE agents SET fb_user_token = NULL, fb_token_expires = NULL, fb_last_updated = NULL,
		fb_page_id = NULL, fb_page_name = NULL, fb_page_token = NULL, fb_connected_at = NULL,
		updated_at = ?
	WHERE agent_id = ?`

	return s.withRetry(ctx, "clear facebook", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin clear facebook: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, s.q(query), time.Now().Unix(), agentID)
		if err != nil {
			return fmt.Errorf("clear facebook: %w", err)
		}
		if err := expectRows(res, agentID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM page_posts WHERE agent_id = ?`), agentID); err != nil {
			return fmt.Errorf("delete posts: %w", err)
		}
		return tx.Commit()
	})
}

// AddPost records a published post.
func (s *sqlStore) AddPost(ctx context.Context, post *domain.PagePost) error {
	query := `INSERT INTO page_posts (id, agent_id, text, url, created_at) VALUES (?, ?, ?, ?, ?)`
	return s.withRetry(ctx, "add post", func() error {
		_, err := s.db.ExecContext(ctx, s.q(query),
			post.ID, post.AgentID, post.Text, post.URL, post.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("add post: %w", err)
		}
		return nil
	})
}

// ListPosts returns an agent's posts, newest first.
func (s *sqlStore) ListPosts(ctx context.Context, agentID string, limit int) ([]domain.PagePost, error) {
	query := `SELECT id, agent_id, text, url, created_at FROM page_posts WHERE agent_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{agentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close post rows", "error", closeErr)
		}
	}()

	posts := []domain.PagePost{}
	for rows.Next() {
		var p domain.PagePost
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.AgentID, &p.Text, &p.URL, &createdAt); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func expectRows(res sql.Result, agentID string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("Update affected 0 rows", "agent_id", agentID)
		return ErrAgentNotFound
	}
	return nil
}
