// Package chat serves the per-request coordination channel over HTTP:
// message history, appends, and websocket join tickets.
package chat

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reliefmesh/reliefmesh-go/internal/api"
	"github.com/reliefmesh/reliefmesh-go/internal/chat"
	"github.com/reliefmesh/reliefmesh-go/internal/fault"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/realtime"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Handler serves the /api/requests/{id}/channel endpoints.
type Handler struct {
	threads *chat.Service
	tickets *realtime.TicketIssuer
}

func NewHandler(threads *chat.Service, tickets *realtime.TicketIssuer) *Handler {
	return &Handler{threads: threads, tickets: tickets}
}

// MessageView is one channel entry on the wire.
type MessageView struct {
	Seq            uint64    `json:"seq"`
	SenderIdentity string    `json:"senderIdentity"`
	SenderRoleTag  string    `json:"senderRoleTag"`
	Body           string    `json:"body"`
	Timestamp      time.Time `json:"timestamp"`
}

func messageViewOf(e *store.ThreadEntry) MessageView {
	return MessageView{
		Seq:            e.Seq,
		SenderIdentity: e.SenderID,
		SenderRoleTag:  e.SenderRole,
		Body:           e.Body,
		Timestamp:      e.Timestamp,
	}
}

// Recent handles GET /api/requests/{id}/channel?limit=N.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())
	requestID := chi.URLParam(r, "id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.WriteBadRequest(w, api.ReasonBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.threads.Recent(r.Context(), ident, requestID, limit)
	if err != nil {
		api.WriteFault(w, err)
		return
	}

	views := make([]MessageView, 0, len(entries))
	for _, e := range entries {
		views = append(views, messageViewOf(e))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"messages": views})
}

// AppendRequest is the POST message payload.
type AppendRequest struct {
	Body string `json:"body"`
}

// Append handles POST /api/requests/{id}/channel/messages.
func (h *Handler) Append(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())
	requestID := chi.URLParam(r, "id")

	var req AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	entry, err := h.threads.AppendMessage(r.Context(), ident, requestID, req.Body)
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, messageViewOf(entry))
}

// TicketResponse carries a short-lived websocket join ticket.
type TicketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Ticket handles POST /api/requests/{id}/channel/ticket. The ticket is bound
// to this request's channel and only issued to identities that can read it.
func (h *Handler) Ticket(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())
	requestID := chi.URLParam(r, "id")

	ok, err := h.threads.CanAccess(r.Context(), ident, requestID)
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	if !ok {
		api.WriteFault(w, fault.NotAuthorized(fault.ReasonNotAuthorized, "not a participant in this request"))
		return
	}

	ticket, err := h.tickets.Issue(requestID, ident)
	if err != nil {
		api.WriteInternalError(w, "failed to issue channel ticket")
		return
	}
	api.WriteJSON(w, http.StatusOK, TicketResponse{
		Ticket:    ticket,
		ExpiresAt: time.Now().Add(h.tickets.TTL()),
	})
}
