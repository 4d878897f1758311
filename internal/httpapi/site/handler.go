// Package site serves informational pages and the public feedback box.
package site

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reliefmesh/reliefmesh-go/internal/api"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Page is a static informational page.
type Page struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// pages is the built-in informational content. Slugs are stable; the copy
// can change without coordinating with clients.
var pages = map[string]Page{
	"about": {
		Slug:  "about",
		Title: "About ReliefMesh",
		Body: "ReliefMesh connects people affected by disasters with relief " +
			"organizations, volunteers, and local suppliers. Requests for aid " +
			"are tracked from first report to verified delivery.",
	},
	"how-it-works": {
		Slug:  "how-it-works",
		Title: "How It Works",
		Body: "Post a request describing what you need and where you are. " +
			"Responders pick it up, source supplies from nearby suppliers, " +
			"and coordinate with you in the request's channel until delivery " +
			"is confirmed.",
	},
	"responders": {
		Slug:  "responders",
		Title: "For Responders",
		Body: "Organizations and volunteers can attach to open requests, " +
			"place sourcing orders with registered suppliers, and track " +
			"dispatch and delivery in one place.",
	},
	"suppliers": {
		Slug:  "suppliers",
		Title: "For Suppliers",
		Body: "Register your stock by category and keep quantities current. " +
			"Responders searching for supplies near a request will find you, " +
			"and deliveries feed your public rating.",
	},
}

// Handler serves the /api/site endpoints.
type Handler struct {
	feedback store.FeedbackStore
}

func NewHandler(feedback store.FeedbackStore) *Handler {
	return &Handler{feedback: feedback}
}

// GetPage handles GET /api/site/pages/{slug}.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	slug := strings.ToLower(chi.URLParam(r, "slug"))
	page, ok := pages[slug]
	if !ok {
		api.WriteError(w, http.StatusNotFound, "page_not_found", "no such page")
		return
	}
	api.WriteJSON(w, http.StatusOK, page)
}

// ListPages handles GET /api/site/pages.
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	slugs := make([]string, 0, len(pages))
	for slug := range pages {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	api.WriteJSON(w, http.StatusOK, map[string]any{"pages": slugs})
}

// FeedbackRequest is the feedback submission payload.
type FeedbackRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Body  string `json:"body"`
}

// SubmitFeedback handles POST /api/site/feedback. No authentication is
// required; the endpoint is rate limited upstream.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		api.WriteBadRequest(w, api.ReasonBadRequest, "body is required")
		return
	}

	fb := &store.Feedback{
		ID:        identity.NewID(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Body:      strings.TrimSpace(req.Body),
		CreatedAt: time.Now(),
	}
	if err := h.feedback.CreateFeedback(r.Context(), fb); err != nil {
		api.WriteInternalError(w, "failed to record feedback")
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]any{"id": fb.ID})
}
