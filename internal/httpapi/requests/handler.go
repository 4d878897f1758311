// Package requests serves the aid request lifecycle endpoints.
package requests

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reliefmesh/reliefmesh-go/internal/api"
	"github.com/reliefmesh/reliefmesh-go/internal/geo"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/request"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Handler serves the /api/requests endpoints.
type Handler struct {
	requests *request.Service
}

func NewHandler(requests *request.Service) *Handler {
	return &Handler{requests: requests}
}

// View is the wire shape of a request.
type View struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Urgency     string          `json:"urgency"`
	Description string          `json:"description"`
	Location    *geo.Coordinate `json:"location,omitempty"`
	Address     string          `json:"address,omitempty"`

	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
	Status        string `json:"status"`

	PrimaryResponderID   string `json:"primaryResponderId,omitempty"`
	PrimaryResponderName string `json:"primaryResponderName,omitempty"`

	CompletedBy string     `json:"completedBy,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	VerifiedBy  string     `json:"verifiedBy,omitempty"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
	VerifyNotes string     `json:"verifyNotes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResponderView is the wire shape of a responder entry.
type ResponderView struct {
	IdentityID string    `json:"identityId"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	JoinedAt   time.Time `json:"joinedAt"`
}

func viewOf(r *store.Request) View {
	v := View{
		ID:                   r.ID,
		Category:             r.Category,
		Urgency:              r.Urgency,
		Description:          r.Description,
		Address:              r.Address,
		RequesterID:          r.RequesterID,
		RequesterName:        r.RequesterName,
		Status:               r.Status,
		PrimaryResponderID:   r.PrimaryResponderID,
		PrimaryResponderName: r.PrimaryResponderName,
		CompletedBy:          r.CompletedBy,
		CompletedAt:          r.CompletedAt,
		VerifiedBy:           r.VerifiedBy,
		VerifiedAt:           r.VerifiedAt,
		VerifyNotes:          r.VerifyNotes,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if r.Lat != 0 || r.Lng != 0 {
		v.Location = &geo.Coordinate{Lat: r.Lat, Lng: r.Lng}
	}
	return v
}

func responderViewOf(r *store.Responder) ResponderView {
	return ResponderView{
		IdentityID: r.IdentityID,
		Name:       r.Name,
		Role:       r.Role,
		Status:     r.Status,
		JoinedAt:   r.JoinedAt,
	}
}

// CreateRequest is the creation payload.
type CreateRequest struct {
	Category    string          `json:"category"`
	Urgency     string          `json:"urgency"`
	Description string          `json:"description"`
	Location    *geo.Coordinate `json:"location"`
	Address     string          `json:"address"`
}

// Create handles POST /api/requests.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	in := request.CreateInput{
		Category:    req.Category,
		Urgency:     req.Urgency,
		Description: req.Description,
		Address:     req.Address,
	}
	if req.Location != nil {
		in.Location = *req.Location
	}

	created, err := h.requests.Create(r.Context(), ident, in)
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, viewOf(created))
}

// Get handles GET /api/requests/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(req))
}

// List handles GET /api/requests with optional status, category, and mine
// filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.RequestFilter{
		Status:   r.URL.Query().Get("status"),
		Category: r.URL.Query().Get("category"),
	}
	if r.URL.Query().Get("mine") == "true" {
		if ident, ok := identity.FromContext(r.Context()); ok {
			filter.RequesterID = ident.ID
		}
	}

	list, err := h.requests.List(r.Context(), filter)
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	views := make([]View, 0, len(list))
	for _, req := range list {
		views = append(views, viewOf(req))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"requests": views})
}

// AttachResponder handles POST /api/requests/{id}/responders. The caller
// attaches with its own role.
func (h *Handler) AttachResponder(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	req, err := h.requests.AttachResponder(r.Context(), ident, chi.URLParam(r, "id"), ident.Role)
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(req))
}

// Withdraw handles DELETE /api/requests/{id}/responders.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	if err := h.requests.Withdraw(r.Context(), ident, chi.URLParam(r, "id")); err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

// ListResponders handles GET /api/requests/{id}/responders.
func (h *Handler) ListResponders(w http.ResponseWriter, r *http.Request) {
	responders, err := h.requests.ListResponders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	views := make([]ResponderView, 0, len(responders))
	for _, resp := range responders {
		views = append(views, responderViewOf(resp))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"responders": views})
}

// Complete handles POST /api/requests/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	req, err := h.requests.Complete(r.Context(), ident, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(req))
}

// Verify handles POST /api/requests/{id}/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var body struct {
		Notes string `json:"notes"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
			return
		}
	}

	req, err := h.requests.Verify(r.Context(), ident, chi.URLParam(r, "id"), body.Notes)
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(req))
}

// Reject handles POST /api/requests/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	req, err := h.requests.Reject(r.Context(), ident, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(req))
}
