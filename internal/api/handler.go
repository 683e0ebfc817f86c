// Package api provides HTTP handlers for the estatepost API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/estatepost/internal/oauth"
	"github.com/ashureev/estatepost/internal/store"
)

// FacebookService is the agent connection API served over HTTP.
type FacebookService interface {
	ConnectURL(agentID string) (string, error)
	HandleCallback(ctx context.Context, code, state string) (*oauth.CallbackResult, error)
	SelectPage(ctx context.Context, req oauth.SelectPageRequest) (*oauth.SelectPageResult, error)
	Disconnect(ctx context.Context, agentID string) error
	VerifyConnection(ctx context.Context, agentID string) (*oauth.Connection, error)
	Status(ctx context.Context, agentID string) (*oauth.StatusReport, error)
	PublishPost(ctx context.Context, agentID, text, link string) (*oauth.PublishedPost, error)
}

// Handler provides common handler utilities.
type Handler struct {
	svc FacebookService
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(svc FacebookService) *Handler {
	return &Handler{svc: svc}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// serviceError maps a service error to a status code and a client-safe
// message and writes it.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAgentNotFound):
		Error(w, http.StatusNotFound, "Agent not found")
	case errors.Is(err, oauth.ErrExchangeFailed):
		Error(w, http.StatusBadRequest, "Facebook token exchange failed")
	case errors.Is(err, oauth.ErrInvalidRequest),
		errors.Is(err, oauth.ErrNoPages),
		errors.Is(err, oauth.ErrNotConnected),
		errors.Is(err, oauth.ErrMissingPageToken):
		Error(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "oauth: "))
	case errors.Is(err, oauth.ErrPublishFailed):
		Error(w, http.StatusBadGateway, "Failed to post to Facebook page")
	default:
		slog.Error("Request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}
