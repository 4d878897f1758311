// Package suppliers serves organization and supplier profile endpoints and
// the supplier match query.
package suppliers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/reliefmesh/reliefmesh-go/internal/api"
	"github.com/reliefmesh/reliefmesh-go/internal/geo"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/profile"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
	"github.com/reliefmesh/reliefmesh-go/internal/supplier"
)

// Handler serves the /api/orgs and /api/suppliers endpoints.
type Handler struct {
	profiles *profile.Service
	matcher  *supplier.Matcher
}

func NewHandler(profiles *profile.Service, matcher *supplier.Matcher) *Handler {
	return &Handler{profiles: profiles, matcher: matcher}
}

// OrgView is the wire shape of an organization profile.
type OrgView struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func orgViewOf(o *store.Organization) OrgView {
	return OrgView{
		ID:          o.ID,
		OwnerID:     o.OwnerID,
		Name:        o.Name,
		Description: o.Description,
		Phone:       o.Phone,
		Address:     o.Address,
		CreatedAt:   o.CreatedAt,
	}
}

// SupplierView is the wire shape of a supplier profile.
type SupplierView struct {
	ID       string          `json:"id"`
	OwnerID  string          `json:"ownerId"`
	Name     string          `json:"name"`
	Location *geo.Coordinate `json:"location,omitempty"`
	Address  string          `json:"address,omitempty"`

	RatingAverage         decimal.Decimal `json:"ratingAverage"`
	RatingCount           int64           `json:"ratingCount"`
	DeliveryEstimateHours int             `json:"deliveryEstimateHours"`

	CreatedAt time.Time `json:"createdAt"`
}

func supplierViewOf(s *store.SupplierProfile) SupplierView {
	v := SupplierView{
		ID:                    s.ID,
		OwnerID:               s.OwnerID,
		Name:                  s.Name,
		Address:               s.Address,
		RatingAverage:         s.RatingAverage,
		RatingCount:           s.RatingCount,
		DeliveryEstimateHours: s.DeliveryEstimateHours,
		CreatedAt:             s.CreatedAt,
	}
	if s.Lat != 0 || s.Lng != 0 {
		v.Location = &geo.Coordinate{Lat: s.Lat, Lng: s.Lng}
	}
	return v
}

// OrgRequest is the org create/edit payload.
type OrgRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

func (req OrgRequest) input() profile.OrgInput {
	return profile.OrgInput{
		Name:        req.Name,
		Description: req.Description,
		Phone:       req.Phone,
		Address:     req.Address,
	}
}

// CreateOrg handles POST /api/orgs.
func (h *Handler) CreateOrg(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var req OrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	org, err := h.profiles.CreateOrg(r.Context(), ident, req.input())
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, orgViewOf(org))
}

// GetOrg handles GET /api/orgs/{id}.
func (h *Handler) GetOrg(w http.ResponseWriter, r *http.Request) {
	org, err := h.profiles.GetOrg(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, orgViewOf(org))
}

// UpdateOrg handles PUT /api/orgs/{id}.
func (h *Handler) UpdateOrg(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var req OrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	org, err := h.profiles.UpdateOrg(r.Context(), ident, chi.URLParam(r, "id"), req.input())
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, orgViewOf(org))
}

// ListOrgs handles GET /api/orgs.
func (h *Handler) ListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.profiles.ListOrgs(r.Context())
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	views := make([]OrgView, 0, len(orgs))
	for _, org := range orgs {
		views = append(views, orgViewOf(org))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"organizations": views})
}

// SupplierRequest is the supplier create/edit payload.
type SupplierRequest struct {
	Name                  string          `json:"name"`
	Location              *geo.Coordinate `json:"location"`
	Address               string          `json:"address"`
	DeliveryEstimateHours int             `json:"deliveryEstimateHours"`
}

func (req SupplierRequest) input() profile.SupplierInput {
	in := profile.SupplierInput{
		Name:                  req.Name,
		Address:               req.Address,
		DeliveryEstimateHours: req.DeliveryEstimateHours,
	}
	if req.Location != nil {
		in.Location = *req.Location
	}
	return in
}

// CreateSupplier handles POST /api/suppliers.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var req SupplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	sup, err := h.profiles.CreateSupplier(r.Context(), ident, req.input())
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, supplierViewOf(sup))
}

// GetSupplier handles GET /api/suppliers/{id}.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	sup, err := h.profiles.GetSupplier(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, supplierViewOf(sup))
}

// UpdateSupplier handles PUT /api/suppliers/{id}.
func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())

	var req SupplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	sup, err := h.profiles.UpdateSupplier(r.Context(), ident, chi.URLParam(r, "id"), req.input())
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, supplierViewOf(sup))
}

// ListSuppliers handles GET /api/suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	sups, err := h.profiles.ListSuppliers(r.Context())
	if err != nil {
		api.WriteFault(w, err)
		return
	}
	views := make([]SupplierView, 0, len(sups))
	for _, sup := range sups {
		views = append(views, supplierViewOf(sup))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"suppliers": views})
}

// MatchView is one supplier match on the wire.
type MatchView struct {
	Supplier   SupplierView `json:"supplier"`
	Items      []ItemRef    `json:"items"`
	DistanceKm float64      `json:"distanceKm,omitempty"`
}

// ItemRef is the in-stock item subset inside a match.
type ItemRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Match handles GET /api/suppliers/match?category=...&lat=...&lng=...
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	var loc *geo.Coordinate
	latStr, lngStr := r.URL.Query().Get("lat"), r.URL.Query().Get("lng")
	if latStr != "" && lngStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr != nil || lngErr != nil {
			api.WriteBadRequest(w, api.ReasonBadRequest, "lat and lng must be numbers")
			return
		}
		loc = &geo.Coordinate{Lat: lat, Lng: lng}
	}

	matches, err := h.matcher.FindSuppliers(r.Context(), category, loc)
	if err != nil {
		api.WriteFault(w, err)
		return
	}

	views := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		mv := MatchView{
			Supplier:   supplierViewOf(m.Supplier),
			DistanceKm: m.DistanceKm,
			Items:      make([]ItemRef, 0, len(m.Items)),
		}
		for _, item := range m.Items {
			mv.Items = append(mv.Items, ItemRef{ID: item.ID, Name: item.Name, Quantity: item.Quantity})
		}
		views = append(views, mv)
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"matches": views})
}
