package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/estatepost/internal/oauth"
)

// FacebookHandler handles the agent connection endpoints.
type FacebookHandler struct {
	*Handler
}

// NewFacebookHandler creates a new Facebook connection handler.
func NewFacebookHandler(base *Handler) *FacebookHandler {
	return &FacebookHandler{Handler: base}
}

// RegisterRoutes registers Facebook routes.
func (h *FacebookHandler) RegisterRoutes(r chi.Router) {
	r.Route("/facebook", func(r chi.Router) {
		r.Get("/connect", h.Connect)
		r.Get("/callback", h.Callback)
		r.Post("/select-page", h.SelectPage)
		r.Post("/disconnect", h.Disconnect)
		r.Get("/verify-connection/{agentID}", h.VerifyConnection)
		r.Get("/status", h.Status)
	})
}

// Connect redirects to the Facebook OAuth dialog.
func (h *FacebookHandler) Connect(w http.ResponseWriter, r *http.Request) {
	target, err := h.svc.ConnectURL(r.URL.Query().Get("agent_id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback completes the OAuth flow and lists the agent's pages.
func (h *FacebookHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.HandleCallback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// SelectPage stores the page chosen by the agent.
func (h *FacebookHandler) SelectPage(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SelectPage(r.Context(), oauth.SelectPageRequest{
		AgentID:   r.FormValue("agent_id"),
		PageID:    r.FormValue("page_id"),
		PageName:  r.FormValue("page_name"),
		PageToken: r.FormValue("page_token"),
	})
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Disconnect revokes access and clears the agent's Facebook data.
func (h *FacebookHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Disconnect(r.Context(), r.FormValue("agent_id")); err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// VerifyConnection reports whether the agent has a usable page connection.
func (h *FacebookHandler) VerifyConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.svc.VerifyConnection(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, conn)
}

// Status returns the agent's connection summary and post history.
func (h *FacebookHandler) Status(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		Error(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	report, err := h.svc.Status(r.Context(), agentID)
	if err != nil {
		serviceError(w, err)
		return
	}
	JSON(w, http.StatusOK, report)
}
