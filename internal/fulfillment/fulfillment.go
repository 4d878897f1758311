// Package fulfillment coordinates sourcing stock from suppliers for aid
// requests. A FulfillmentRequest moves pending -> accepted -> dispatched ->
// delivered, or pending -> rejected, with the inventory decrement bound to
// the dispatch flip: both happen or neither does.
package fulfillment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/reliefmesh/reliefmesh-go/internal/fault"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/platform/logutil"
	"github.com/reliefmesh/reliefmesh-go/internal/request"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// FulfillmentRequest statuses.
const (
	StatusPending    = "pending"
	StatusAccepted   = "accepted"
	StatusRejected   = "rejected"
	StatusDispatched = "dispatched"
	StatusDelivered  = "delivered"
)

// Store is the slice of the backend the coordinator needs.
type Store interface {
	store.FulfillmentStore
	store.RequestStore
	store.SupplierStore
	store.OrganizationStore
}

// Inventory is the ledger surface the coordinator consumes.
type Inventory interface {
	Get(ctx context.Context, itemID string) (*store.InventoryItem, error)
	Decrement(ctx context.Context, itemID string, qty int) (*store.InventoryItem, error)
}

// Lifecycle receives roll-up events on the parent request.
type Lifecycle interface {
	AdvanceOnFulfillmentEvent(ctx context.Context, requestID string, event request.FulfillmentEvent) error
}

// Coordinator owns all FulfillmentRequest mutations.
type Coordinator struct {
	store     Store
	inventory Inventory
	lifecycle Lifecycle
	log       *slog.Logger
}

func NewCoordinator(st Store, inv Inventory, lc Lifecycle, log *slog.Logger) *Coordinator {
	return &Coordinator{
		store:     st,
		inventory: inv,
		lifecycle: lc,
		log:       logutil.Component(log, "fulfillment"),
	}
}

// CreateInput is the payload for sourcing stock under a request.
type CreateInput struct {
	SupplierID   string
	ItemID       string
	RequestedQty int
	Note         string
}

// Create raises a pending fulfillment request from the caller's organization
// to a supplier. The caller must be an active responder on the request. A
// stock shortfall at creation time is soft: creation proceeds and the
// shortfall is returned as a warning for the supplier to resolve at accept
// time.
func (c *Coordinator) Create(ctx context.Context, caller identity.Identity, requestID string, in CreateInput) (*store.FulfillmentRequest, *fault.Fault, error) {
	if in.RequestedQty <= 0 {
		return nil, nil, fault.Invalid(fault.ReasonInvalidField, "requested quantity must be positive").
			With("field", "requested_qty")
	}

	org, err := c.store.GetOrgByOwner(ctx, caller.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fault.NotAuthorized(fault.ReasonOrgNotFound, "caller has no organization profile")
		}
		return nil, nil, fault.Internal(err)
	}

	req, err := c.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fault.NotFound(fault.ReasonRequestNotFound, "request %s not found", requestID)
		}
		return nil, nil, fault.Internal(err)
	}
	if request.Status(req.Status).IsTerminal() {
		return nil, nil, fault.InvalidState(fault.ReasonRequestClosed, "request is closed").
			With("current_status", req.Status)
	}

	responder, err := c.store.GetResponder(ctx, requestID, caller.ID)
	if err != nil || responder.Status == request.ResponderWithdrawn {
		return nil, nil, fault.NotAuthorized(fault.ReasonNotAssigned, "organization is not an active responder on this request")
	}

	if _, err := c.store.GetSupplier(ctx, in.SupplierID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fault.NotFound(fault.ReasonSupplierNotFound, "supplier %s not found", in.SupplierID)
		}
		return nil, nil, fault.Internal(err)
	}

	item, err := c.inventory.Get(ctx, in.ItemID)
	if err != nil {
		return nil, nil, err
	}
	if item.SupplierID != in.SupplierID {
		return nil, nil, fault.NotFound(fault.ReasonItemNotFound, "item does not belong to supplier %s", in.SupplierID)
	}

	fr := &store.FulfillmentRequest{
		ID:           identity.NewID(),
		RequestID:    requestID,
		OrgID:        org.ID,
		SupplierID:   in.SupplierID,
		ItemID:       in.ItemID,
		RequestedQty: in.RequestedQty,
		Status:       StatusPending,
		Note:         in.Note,
	}
	if err := c.store.CreateFulfillment(ctx, fr); err != nil {
		return nil, nil, fault.Internal(err)
	}

	if err := c.lifecycle.AdvanceOnFulfillmentEvent(ctx, requestID, request.EventFulfillmentCreated); err != nil {
		c.log.Error("roll-up failed", "request_id", requestID, "error", err)
	}

	var warning *fault.Fault
	if item.Quantity < in.RequestedQty {
		warning = fault.InsufficientStock("supplier has %d in stock, %d requested", item.Quantity, in.RequestedQty).
			With("available", item.Quantity).
			With("requested", in.RequestedQty)
	}

	c.log.Info("fulfillment created", "fulfillment_id", fr.ID, "request_id", requestID,
		"supplier_id", in.SupplierID, "qty", in.RequestedQty, "stock_short", warning != nil)
	return fr, warning, nil
}

// Get returns one fulfillment request.
func (c *Coordinator) Get(ctx context.Context, id string) (*store.FulfillmentRequest, error) {
	fr, err := c.store.GetFulfillment(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fault.NotFound(fault.ReasonFulfillmentNotFound, "fulfillment %s not found", id)
		}
		return nil, fault.Internal(err)
	}
	return fr, nil
}

// ListByRequest returns all fulfillments under a request.
func (c *Coordinator) ListByRequest(ctx context.Context, requestID string) ([]*store.FulfillmentRequest, error) {
	out, err := c.store.ListFulfillmentsByRequest(ctx, requestID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}

// ListBySupplier returns all fulfillments addressed to a supplier.
func (c *Coordinator) ListBySupplier(ctx context.Context, supplierID string) ([]*store.FulfillmentRequest, error) {
	out, err := c.store.ListFulfillmentsBySupplier(ctx, supplierID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}

// owningSupplier checks the caller owns the supplier the fulfillment is
// addressed to.
func (c *Coordinator) owningSupplier(ctx context.Context, caller identity.Identity, fr *store.FulfillmentRequest) (*store.SupplierProfile, error) {
	sup, err := c.store.GetSupplierByOwner(ctx, caller.ID)
	if err != nil || sup.ID != fr.SupplierID {
		return nil, fault.NotAuthorized(fault.ReasonNotOwner, "only the addressed supplier may act on this fulfillment")
	}
	return sup, nil
}

// Accept commits the supplier to a quantity. fulfilledQty of 0 defaults to
// the requested quantity. Stock is checked hard here: a shortfall blocks
// acceptance, though nothing is decremented until dispatch.
func (c *Coordinator) Accept(ctx context.Context, caller identity.Identity, id string, fulfilledQty int) (*store.FulfillmentRequest, error) {
	fr, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := c.owningSupplier(ctx, caller, fr); err != nil {
		return nil, err
	}
	if fr.Status != StatusPending {
		return nil, fault.InvalidState(fault.ReasonAlreadyProcessed, "fulfillment already processed").
			With("current_status", fr.Status)
	}

	if fulfilledQty == 0 {
		fulfilledQty = fr.RequestedQty
	}
	if fulfilledQty < 0 || fulfilledQty > fr.RequestedQty {
		return nil, fault.Invalid(fault.ReasonInvalidField, "fulfilled quantity must be between 1 and the requested quantity").
			With("field", "fulfilled_qty").
			With("requested", fr.RequestedQty)
	}

	item, err := c.inventory.Get(ctx, fr.ItemID)
	if err != nil {
		return nil, err
	}
	if item.Quantity < fulfilledQty {
		return nil, fault.InsufficientStock("item has %d in stock, %d committed", item.Quantity, fulfilledQty).
			With("available", item.Quantity).
			With("requested", fulfilledQty)
	}

	fr.Status = StatusAccepted
	fr.FulfilledQty = fulfilledQty
	if err := c.store.TransitionFulfillment(ctx, fr, StatusPending); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fault.InvalidState(fault.ReasonAlreadyProcessed, "fulfillment already processed")
		}
		return nil, fault.Internal(err)
	}

	c.log.Info("fulfillment accepted", "fulfillment_id", fr.ID, "qty", fulfilledQty)
	return fr, nil
}

// Reject declines a pending fulfillment with a reason.
func (c *Coordinator) Reject(ctx context.Context, caller identity.Identity, id, reason string) (*store.FulfillmentRequest, error) {
	fr, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := c.owningSupplier(ctx, caller, fr); err != nil {
		return nil, err
	}
	if fr.Status != StatusPending {
		return nil, fault.InvalidState(fault.ReasonAlreadyProcessed, "fulfillment already processed").
			With("current_status", fr.Status)
	}

	fr.Status = StatusRejected
	fr.RejectReason = reason
	if err := c.store.TransitionFulfillment(ctx, fr, StatusPending); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fault.InvalidState(fault.ReasonAlreadyProcessed, "fulfillment already processed")
		}
		return nil, fault.Internal(err)
	}

	c.log.Info("fulfillment rejected", "fulfillment_id", fr.ID)
	return fr, nil
}

// DispatchInput carries optional dispatch metadata.
type DispatchInput struct {
	// EtaHours overrides the supplier's default delivery estimate. Nil means
	// use the default; an explicit value must be positive.
	EtaHours    *int
	TrackingRef string
}

// minEtaHours floors the delivery estimate so a dispatch always carries an
// expected delivery time, even for suppliers with no configured estimate.
const minEtaHours = 1

// Dispatch flips the fulfillment to dispatched and decrements the committed
// quantity from stock. The status flip is a conditional transition claimed
// before the decrement, so two concurrent dispatches of one fulfillment
// cannot both decrement; if the decrement then fails the claim is released
// and stock and status still agree.
func (c *Coordinator) Dispatch(ctx context.Context, caller identity.Identity, id string, in DispatchInput) (*store.FulfillmentRequest, error) {
	fr, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sup, err := c.owningSupplier(ctx, caller, fr)
	if err != nil {
		return nil, err
	}
	if fr.Status != StatusAccepted {
		return nil, fault.InvalidState(fault.ReasonNotAccepted, "fulfillment must be accepted before dispatch").
			With("current_status", fr.Status)
	}
	if in.EtaHours != nil && *in.EtaHours <= 0 {
		return nil, fault.Invalid(fault.ReasonInvalidField, "eta must be positive").With("field", "eta_hours")
	}

	etaHours := sup.DeliveryEstimateHours
	if in.EtaHours != nil {
		etaHours = *in.EtaHours
	}
	if etaHours < minEtaHours {
		etaHours = minEtaHours
	}

	prev := *fr
	now := time.Now()
	eta := now.Add(time.Duration(etaHours) * time.Hour)
	fr.Status = StatusDispatched
	fr.DispatchedAt = &now
	fr.TrackingRef = in.TrackingRef
	fr.ExpectedDelivery = &eta
	if err := c.store.TransitionFulfillment(ctx, fr, StatusAccepted); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fault.InvalidState(fault.ReasonNotAccepted, "fulfillment must be accepted before dispatch")
		}
		return nil, fault.Internal(err)
	}

	if _, err := c.inventory.Decrement(ctx, fr.ItemID, fr.FulfilledQty); err != nil {
		// Release the claim so the supplier can retry once restocked.
		if terr := c.store.TransitionFulfillment(ctx, &prev, StatusDispatched); terr != nil {
			c.log.Error("dispatch rollback failed", "fulfillment_id", fr.ID, "error", terr)
		}
		return nil, err
	}

	if err := c.lifecycle.AdvanceOnFulfillmentEvent(ctx, fr.RequestID, request.EventFulfillmentDispatched); err != nil {
		c.log.Error("roll-up failed", "request_id", fr.RequestID, "error", err)
	}

	c.log.Info("fulfillment dispatched", "fulfillment_id", fr.ID, "qty", fr.FulfilledQty)
	return fr, nil
}

// DeliveryInput carries delivery confirmation metadata.
type DeliveryInput struct {
	Notes string
}

// MarkDelivered confirms receipt. The creating organization's owner, the
// requester of the parent request, or an overseer may confirm. When every
// sibling fulfillment has settled and at least one delivered, the parent
// request rolls up to delivered.
func (c *Coordinator) MarkDelivered(ctx context.Context, caller identity.Identity, id string, in DeliveryInput) (*store.FulfillmentRequest, error) {
	fr, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.mayConfirm(ctx, caller, fr); err != nil {
		return nil, err
	}
	if fr.Status != StatusDispatched {
		return nil, fault.InvalidState(fault.ReasonNotDispatched, "fulfillment must be dispatched before delivery").
			With("current_status", fr.Status)
	}

	now := time.Now()
	fr.Status = StatusDelivered
	fr.DeliveredAt = &now
	fr.ReceivedBy = caller.ID
	fr.DeliveryNotes = in.Notes
	if err := c.store.TransitionFulfillment(ctx, fr, StatusDispatched); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fault.InvalidState(fault.ReasonNotDispatched, "fulfillment must be dispatched before delivery")
		}
		return nil, fault.Internal(err)
	}

	if c.allSettled(ctx, fr.RequestID) {
		if err := c.lifecycle.AdvanceOnFulfillmentEvent(ctx, fr.RequestID, request.EventAllFulfillmentsDelivered); err != nil {
			c.log.Error("roll-up failed", "request_id", fr.RequestID, "error", err)
		}
	}

	c.log.Info("fulfillment delivered", "fulfillment_id", fr.ID, "received_by", caller.ID)
	return fr, nil
}

func (c *Coordinator) mayConfirm(ctx context.Context, caller identity.Identity, fr *store.FulfillmentRequest) error {
	if caller.IsOverseer() {
		return nil
	}
	if org, err := c.store.GetOrgByOwner(ctx, caller.ID); err == nil && org.ID == fr.OrgID {
		return nil
	}
	if req, err := c.store.GetRequest(ctx, fr.RequestID); err == nil && req.RequesterID == caller.ID {
		return nil
	}
	return fault.NotAuthorized(fault.ReasonNotAuthorized, "only the receiving organization or the requester may confirm delivery")
}

// allSettled reports whether every fulfillment under the request is either
// delivered or rejected, with at least one delivered.
func (c *Coordinator) allSettled(ctx context.Context, requestID string) bool {
	siblings, err := c.store.ListFulfillmentsByRequest(ctx, requestID)
	if err != nil {
		c.log.Error("sibling check failed", "request_id", requestID, "error", err)
		return false
	}
	delivered := 0
	for _, sib := range siblings {
		switch sib.Status {
		case StatusDelivered:
			delivered++
		case StatusRejected:
		default:
			return false
		}
	}
	return delivered > 0
}

// Rate records a one-shot 1-5 service rating after delivery and rolls the
// sample into the supplier's aggregate.
func (c *Coordinator) Rate(ctx context.Context, caller identity.Identity, id string, rating int, comment string) (*store.FulfillmentRequest, error) {
	if rating < 1 || rating > 5 {
		return nil, fault.Invalid(fault.ReasonInvalidField, "rating must be between 1 and 5").With("field", "rating")
	}

	fr, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.mayConfirm(ctx, caller, fr); err != nil {
		return nil, err
	}
	if fr.Status != StatusDelivered {
		return nil, fault.InvalidState(fault.ReasonNotDelivered, "fulfillment must be delivered before rating").
			With("current_status", fr.Status)
	}
	if fr.Rating != 0 {
		return nil, fault.InvalidState(fault.ReasonAlreadyRated, "fulfillment already rated").
			With("rating", fr.Rating)
	}

	// Delivered is terminal, so the unrated guard alone makes the claim
	// exclusive: exactly one rating ever reaches the aggregate.
	fr.Rating = rating
	fr.RatingComment = comment
	if err := c.store.ClaimFulfillmentRating(ctx, fr); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fault.InvalidState(fault.ReasonAlreadyRated, "fulfillment already rated")
		}
		return nil, fault.Internal(err)
	}

	sup, err := c.store.AddRatingSample(ctx, fr.SupplierID, rating)
	if err != nil {
		return nil, fault.Internal(err)
	}

	c.log.Info("fulfillment rated", "fulfillment_id", fr.ID, "rating", rating,
		"supplier_average", sup.RatingAverage.String())
	return fr, nil
}
