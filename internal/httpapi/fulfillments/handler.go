// Package fulfillments serves the fulfillment coordination endpoints.
package fulfillments

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reliefmesh/reliefmesh-go/internal/api"
	"github.com/reliefmesh/reliefmesh-go/internal/fault"
	"github.com/reliefmesh/reliefmesh-go/internal/fulfillment"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Handler serves the fulfillment endpoints.
type Handler struct {
	coord *fulfillment.Coordinator
}

func NewHandler(coord *fulfillment.Coordinator) *Handler {
	return &Handler{coord: coord}
}

// View is the wire shape of a fulfillment request.
type View struct {
	ID         string `json:"id"`
	RequestID  string `json:"requestId"`
	OrgID      string `json:"orgId"`
	SupplierID string `json:"supplierId"`
	ItemID     string `json:"itemId"`

	RequestedQty int    `json:"requestedQty"`
	FulfilledQty int    `json:"fulfilledQty"`
	Status       string `json:"status"`
	Note         string `json:"note,omitempty"`
	RejectReason string `json:"rejectReason,omitempty"`

	DispatchedAt     *time.Time `json:"dispatchedAt,omitempty"`
	ExpectedDelivery *time.Time `json:"expectedDelivery,omitempty"`
	TrackingRef      string     `json:"trackingRef,omitempty"`

	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
	ReceivedBy    string     `json:"receivedBy,omitempty"`
	DeliveryNotes string     `json:"deliveryNotes,omitempty"`

	Rating        int    `json:"rating,omitempty"`
	RatingComment string `json:"ratingComment,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func viewOf(f *store.FulfillmentRequest) View {
	return View{
		ID:               f.ID,
		RequestID:        f.RequestID,
		OrgID:            f.OrgID,
		SupplierID:       f.SupplierID,
		ItemID:           f.ItemID,
		RequestedQty:     f.RequestedQty,
		FulfilledQty:     f.FulfilledQty,
		Status:           f.Status,
		Note:             f.Note,
		RejectReason:     f.RejectReason,
		DispatchedAt:     f.DispatchedAt,
		ExpectedDelivery: f.ExpectedDelivery,
		TrackingRef:      f.TrackingRef,
		DeliveredAt:      f.DeliveredAt,
		ReceivedBy:       f.ReceivedBy,
		DeliveryNotes:    f.DeliveryNotes,
		Rating:           f.Rating,
		RatingComment:    f.RatingComment,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// CreateRequest is the creation payload.
type CreateRequest struct {
	SupplierID   string `json:"supplierId"`
	ItemID       string `json:"itemId"`
	RequestedQty int    `json:"requestedQty"`
	Note         string `json:"note"`
}

// CreateResponse carries the created fulfillment and, when stock is short
// at creation time, a non-fatal warning.
type CreateResponse struct {
	Fulfillment View         `json:"fulfillment"`
	Warning     *fault.Fault `json:"warning,omitempty"`
}

// Create handles POST /api/requests/{id}/fulfillments.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	fr, warning, err := h.coord.Create(r.Context(), ident, chi.URLParam(r, "id"), fulfillment.CreateInput{
		SupplierID:   req.SupplierID,
		ItemID:       req.ItemID,
		RequestedQty: req.RequestedQty,
		Note:         req.Note,
	})
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, CreateResponse{Fulfillment: viewOf(fr), Warning: warning})
}

// Get handles GET /api/fulfillments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	fr, err := h.coord.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(fr))
}

// ListByRequest handles GET /api/requests/{id}/fulfillments.
func (h *Handler) ListByRequest(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, func() ([]*store.FulfillmentRequest, error) {
		return h.coord.ListByRequest(r.Context(), chi.URLParam(r, "id"))
	})
}

// ListBySupplier handles GET /api/suppliers/{id}/fulfillments.
func (h *Handler) ListBySupplier(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, func() ([]*store.FulfillmentRequest, error) {
		return h.coord.ListBySupplier(r.Context(), chi.URLParam(r, "id"))
	})
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, list func() ([]*store.FulfillmentRequest, error)) {
	frs, err := list()
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	views := make([]View, 0, len(frs))
	for _, fr := range frs {
		views = append(views, viewOf(fr))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"fulfillments": views})
}

// Accept handles POST /api/fulfillments/{id}/accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var body struct {
		FulfilledQty int `json:"fulfilledQty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
			return
		}
	}

	fr, err := h.coord.Accept(r.Context(), ident, chi.URLParam(r, "id"), body.FulfilledQty)
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(fr))
}

// Reject handles POST /api/fulfillments/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
			return
		}
	}

	fr, err := h.coord.Reject(r.Context(), ident, chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(fr))
}

// Dispatch handles POST /api/fulfillments/{id}/dispatch.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var body struct {
		EtaHours    *int   `json:"etaHours"`
		TrackingRef string `json:"trackingRef"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
			return
		}
	}

	fr, err := h.coord.Dispatch(r.Context(), ident, chi.URLParam(r, "id"), fulfillment.DispatchInput{
		EtaHours:    body.EtaHours,
		TrackingRef: body.TrackingRef,
	})
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(fr))
}

// Deliver handles POST /api/fulfillments/{id}/deliver.
func (h *Handler) Deliver(w http.ResponseWriter, r *http.Request) {
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

	fr, err := h.coord.MarkDelivered(r.Context(), ident, chi.URLParam(r, "id"), fulfillment.DeliveryInput{
		Notes: body.Notes,
	})
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(fr))
}

// Rate handles POST /api/fulfillments/{id}/rate.
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var body struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	fr, err := h.coord.Rate(r.Context(), ident, chi.URLParam(r, "id"), body.Rating, body.Comment)
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(fr))
}
