// Package agent lists the configured agents.
package agent

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/znerol74/call/internal/model/agent"
	"github.com/znerol74/call/pkg/utils"
)

// Handler serves agent listings.
type Handler struct {
	agents agent.Store
}

// Summary is the public view of an agent. Prompts stay server side.
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	PhoneNumber string   `json:"phoneNumber,omitempty"`
	Language    string   `json:"language,omitempty"`
	Tools       []string `json:"tools"`
}

// New creates an agent handler.
func New(agents agent.Store) *Handler {
	return &Handler{agents: agents}
}

// RegisterRoutes mounts the agent routes under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.handleListAgents)
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := h.agents.List()
	out := make([]Summary, 0, len(agents))
	for _, a := range agents {
		out = append(out, Summary{
			ID:          a.ID,
			Name:        a.Name,
			PhoneNumber: a.PhoneNumber,
			Language:    a.Language,
			Tools:       a.ToolNames(),
		})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}
