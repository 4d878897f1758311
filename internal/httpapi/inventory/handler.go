// Package inventory serves the supplier stock ledger endpoints.
package inventory

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reliefmesh/reliefmesh-go/internal/api"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/inventory"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Handler serves the inventory endpoints.
type Handler struct {
	ledger *inventory.Service
}

func NewHandler(ledger *inventory.Service) *Handler {
	return &Handler{ledger: ledger}
}

// View is the wire shape of a stock record.
type View struct {
	ID         string `json:"id"`
	SupplierID string `json:"supplierId"`
	Category   string `json:"category"`
	Name       string `json:"name"`

	Quantity          int  `json:"quantity"`
	LowStockThreshold int  `json:"lowStockThreshold"`
	IsLowStock        bool `json:"isLowStock"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func viewOf(i *store.InventoryItem) View {
	return View{
		ID:                i.ID,
		SupplierID:        i.SupplierID,
		Category:          i.Category,
		Name:              i.Name,
		Quantity:          i.Quantity,
		LowStockThreshold: i.LowStockThreshold,
		IsLowStock:        i.IsLowStock,
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
	}
}

// ItemRequest is the create/edit payload.
type ItemRequest struct {
	Category          string `json:"category"`
	Name              string `json:"name"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"lowStockThreshold"`
}

func (req ItemRequest) input() inventory.ItemInput {
	return inventory.ItemInput{
		Category:          req.Category,
		Name:              req.Name,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
	}
}

// Create handles POST /api/suppliers/{id}/items.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	item, err := h.ledger.CreateItem(r.Context(), ident, chi.URLParam(r, "id"), req.input())
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, viewOf(item))
}

// Get handles GET /api/items/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(item))
}

// Edit handles PUT /api/items/{id}.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	item, err := h.ledger.EditItem(r.Context(), ident, chi.URLParam(r, "id"), req.input())
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(item))
}

// SetQuantity handles PUT /api/items/{id}/quantity.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	item, err := h.ledger.SetQuantity(r.Context(), ident, chi.URLParam(r, "id"), body.Quantity)
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(item))
}

// Delete handles DELETE /api/items/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	if err := h.ledger.DeleteItem(r.Context(), ident, chi.URLParam(r, "id")); err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListBySupplier handles GET /api/suppliers/{id}/items. With low_stock=true
// only items at or under their threshold are returned.
func (h *Handler) ListBySupplier(w http.ResponseWriter, r *http.Request) {
	supplierID := chi.URLParam(r, "id")

	var items []*store.InventoryItem
	var err error
	if r.URL.Query().Get("low_stock") == "true" {
		items, err = h.ledger.LowStock(r.Context(), supplierID)
	} else {
		items, err = h.ledger.ListBySupplier(r.Context(), supplierID)
	}
	if err != nil {
		api.WriteFault(w, err)
		return
	}

	views := make([]View, 0, len(items))
	for _, item := range items {
		views = append(views, viewOf(item))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": views})
}
