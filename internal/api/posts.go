package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PostHandler handles page feed publishing.
type PostHandler struct {
	*Handler
}

// NewPostHandler creates a new post handler.
func NewPostHandler(base *Handler) *PostHandler {
	return &PostHandler{Handler: base}
}

// RegisterRoutes registers post routes.
func (h *PostHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/posts", h.Create)
	})
}

// Create publishes a text post, with an optional link, to the agent's page.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.PublishPost(r.Context(),
		r.FormValue("agent_id"), r.FormValue("text"), r.FormValue("url"))
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   post,
	})
}
