// Package request implements the aid request lifecycle state machine and the
// responder registry. Status transitions are monotonic: a request never
// reverts to an earlier state, and terminal states are retained for audit.
package request

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/reliefmesh/reliefmesh-go/internal/fault"
	"github.com/reliefmesh/reliefmesh-go/internal/geo"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/platform/logutil"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Status is the canonical request lifecycle enumeration.
type Status string

const (
	StatusPending             Status = "pending"
	StatusOngoing             Status = "ongoing"
	StatusAwaitingFulfillment Status = "awaiting_fulfillment"
	StatusInTransit           Status = "in_transit"
	StatusDelivered           Status = "delivered"
	StatusComplete            Status = "complete"
	StatusVerified            Status = "verified"
	StatusRejected            Status = "rejected"
)

// rank orders the forward chain for monotonicity checks. Rejected sits
// outside the chain; it is terminal and reachable only from pending/ongoing.
var rank = map[Status]int{
	StatusPending:             0,
	StatusOngoing:             1,
	StatusAwaitingFulfillment: 2,
	StatusInTransit:           3,
	StatusDelivered:           4,
	StatusComplete:            5,
	StatusVerified:            6,
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// Urgency levels.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Responder entry statuses.
const (
	ResponderActive    = "active"
	ResponderCompleted = "completed"
	ResponderWithdrawn = "withdrawn"
)

// FulfillmentEvent is a roll-up notification from the fulfillment
// coordinator. Handling is idempotent per event type.
type FulfillmentEvent string

const (
	// EventFulfillmentCreated fires when a fulfillment request is created
	// under the aid request.
	EventFulfillmentCreated FulfillmentEvent = "fulfillment_created"

	// EventFulfillmentDispatched fires when any child fulfillment dispatches.
	EventFulfillmentDispatched FulfillmentEvent = "fulfillment_dispatched"

	// EventAllFulfillmentsDelivered fires when every child fulfillment has
	// been delivered.
	EventAllFulfillmentsDelivered FulfillmentEvent = "all_fulfillments_delivered"
)

// attachableRoles are the roles that may appear as responders.
var attachableRoles = map[string]bool{
	identity.RoleOrganization: true,
	identity.RoleVolunteer:    true,
	identity.RoleSupplier:     true,
}

// Service owns all Request mutations.
type Service struct {
	store store.RequestStore
	log   *slog.Logger
}

// NewService creates the request lifecycle service.
func NewService(st store.RequestStore, log *slog.Logger) *Service {
	return &Service{
		store: st,
		log:   logutil.Component(log, "request"),
	}
}

// CreateInput is the payload for raising a new aid request.
type CreateInput struct {
	Category    string
	Urgency     string
	Description string
	Location    geo.Coordinate
	Address     string
}

// Create raises a new aid request in Pending state for the caller.
func (s *Service) Create(ctx context.Context, caller identity.Identity, in CreateInput) (*store.Request, error) {
	if in.Category == "" {
		return nil, fault.Invalid(fault.ReasonMissingField, "category is required").With("field", "category")
	}
	if in.Description == "" {
		return nil, fault.Invalid(fault.ReasonMissingField, "description is required").With("field", "description")
	}
	switch in.Urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
	default:
		return nil, fault.Invalid(fault.ReasonInvalidField, "urgency must be low, medium, or high").
			With("field", "urgency")
	}
	if !in.Location.IsZero() && !in.Location.Valid() {
		return nil, fault.Invalid(fault.ReasonInvalidField, "coordinate out of bounds").With("field", "location")
	}

	req := &store.Request{
		ID:            identity.NewID(),
		Category:      in.Category,
		Urgency:       in.Urgency,
		Description:   in.Description,
		Lat:           in.Location.Lat,
		Lng:           in.Location.Lng,
		Address:       in.Address,
		RequesterID:   caller.ID,
		RequesterName: caller.DisplayName,
		Status:        string(StatusPending),
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, fault.Internal(err)
	}

	s.log.Info("request created", "request_id", req.ID, "category", req.Category, "urgency", req.Urgency)
	return req, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id string) (*store.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fault.NotFound(fault.ReasonRequestNotFound, "request %s not found", id)
		}
		return nil, fault.Internal(err)
	}
	return req, nil
}

// List returns requests matching the filter.
func (s *Service) List(ctx context.Context, filter store.RequestFilter) ([]*store.Request, error) {
	out, err := s.store.ListRequests(ctx, filter)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}

// AttachResponder attaches the caller to the request. The first responder
// becomes the primary responder and flips Pending to Ongoing.
func (s *Service) AttachResponder(ctx context.Context, caller identity.Identity, requestID, role string) (*store.Request, error) {
	if !attachableRoles[role] {
		return nil, fault.Invalid(fault.ReasonInvalidField, "role %q cannot respond to requests", role).
			With("field", "role")
	}

	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	status := Status(req.Status)
	if status.IsTerminal() {
		return nil, fault.InvalidState(fault.ReasonRequestClosed, "request is closed").
			With("current_status", req.Status)
	}
	if status == StatusDelivered || status == StatusComplete {
		return nil, fault.InvalidState(fault.ReasonNotPending, "request no longer accepts responders").
			With("current_status", req.Status)
	}

	responder := &store.Responder{
		ID:         identity.NewID(),
		RequestID:  requestID,
		IdentityID: caller.ID,
		Name:       caller.DisplayName,
		Role:       role,
		Status:     ResponderActive,
		JoinedAt:   time.Now(),
	}
	if err := s.store.AddResponder(ctx, responder); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, fault.InvalidState(fault.ReasonDuplicateResponder, "identity already responding to this request")
		}
		return nil, fault.Internal(err)
	}

	if req.PrimaryResponderID == "" {
		req.PrimaryResponderID = caller.ID
		req.PrimaryResponderName = caller.DisplayName
		if status == StatusPending {
			req.Status = string(StatusOngoing)
		}
		switch err := s.store.ClaimPrimaryResponder(ctx, req); {
		case err == nil:
			s.log.Info("primary responder set", "request_id", requestID, "responder", caller.ID)
		case errors.Is(err, store.ErrStatusConflict):
			// A concurrent responder won the primary slot between our read and
			// the claim. Return the request as that responder left it.
			return s.Get(ctx, requestID)
		default:
			return nil, fault.Internal(err)
		}
	}

	return req, nil
}

// Withdraw marks the caller's responder entry Withdrawn. The entry is never
// removed, and a withdrawn primary responder is not auto-replaced.
func (s *Service) Withdraw(ctx context.Context, caller identity.Identity, requestID string) error {
	responder, err := s.store.GetResponder(ctx, requestID, caller.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fault.NotFound(fault.ReasonNotAssigned, "identity is not a responder on this request")
		}
		return fault.Internal(err)
	}
	if responder.Status == ResponderWithdrawn {
		return nil // idempotent
	}

	responder.Status = ResponderWithdrawn
	if err := s.store.UpdateResponder(ctx, responder); err != nil {
		return fault.Internal(err)
	}

	s.log.Info("responder withdrew", "request_id", requestID, "responder", caller.ID)
	return nil
}

// ListResponders returns the ordered responder list.
func (s *Service) ListResponders(ctx context.Context, requestID string) ([]*store.Responder, error) {
	if _, err := s.Get(ctx, requestID); err != nil {
		return nil, err
	}
	out, err := s.store.ListResponders(ctx, requestID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}

// Complete marks the request Complete. Only a current responder may call;
// their responder entry is marked completed as well.
func (s *Service) Complete(ctx context.Context, caller identity.Identity, requestID string) (*store.Request, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	responder, err := s.store.GetResponder(ctx, requestID, caller.ID)
	if err != nil || responder.Status == ResponderWithdrawn {
		return nil, fault.NotAuthorized(fault.ReasonNotAssigned, "only an active responder may complete the request")
	}

	status := Status(req.Status)
	switch status {
	case StatusOngoing, StatusDelivered:
	case StatusComplete, StatusVerified:
		return nil, fault.InvalidState(fault.ReasonAlreadyProcessed, "request already completed").
			With("current_status", req.Status)
	default:
		return nil, fault.InvalidState(fault.ReasonStatusRegression, "request cannot be completed from %s", req.Status).
			With("current_status", req.Status)
	}

	now := time.Now()
	req.Status = string(StatusComplete)
	req.CompletedBy = caller.ID
	req.CompletedAt = &now
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, fault.Internal(err)
	}

	responder.Status = ResponderCompleted
	if err := s.store.UpdateResponder(ctx, responder); err != nil {
		return nil, fault.Internal(err)
	}

	s.log.Info("request completed", "request_id", requestID, "by", caller.ID)
	return req, nil
}

// Verify marks the request Verified (terminal). Only the requester or an
// overseer may call, and only from Complete.
func (s *Service) Verify(ctx context.Context, caller identity.Identity, requestID, notes string) (*store.Request, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if caller.ID != req.RequesterID && !caller.IsOverseer() {
		return nil, fault.NotAuthorized(fault.ReasonNotAuthorized, "only the requester or an overseer may verify").
			With("required_role", identity.RoleOverseer)
	}
	if Status(req.Status) != StatusComplete {
		return nil, fault.InvalidState(fault.ReasonNotComplete, "request must be complete before verification").
			With("current_status", req.Status)
	}

	now := time.Now()
	req.Status = string(StatusVerified)
	req.VerifiedBy = caller.ID
	req.VerifiedAt = &now
	req.VerifyNotes = notes
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, fault.Internal(err)
	}

	s.log.Info("request verified", "request_id", requestID, "by", caller.ID)
	return req, nil
}

// Reject marks the request Rejected (terminal). Only the requester or an
// overseer may call, and only while Pending or Ongoing.
func (s *Service) Reject(ctx context.Context, caller identity.Identity, requestID string) (*store.Request, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if caller.ID != req.RequesterID && !caller.IsOverseer() {
		return nil, fault.NotAuthorized(fault.ReasonNotAuthorized, "only the requester or an overseer may reject").
			With("required_role", identity.RoleOverseer)
	}

	switch Status(req.Status) {
	case StatusPending, StatusOngoing:
	default:
		return nil, fault.InvalidState(fault.ReasonAlreadyProcessed, "request cannot be rejected from %s", req.Status).
			With("current_status", req.Status)
	}

	req.Status = string(StatusRejected)
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return nil, fault.Internal(err)
	}

	s.log.Info("request rejected", "request_id", requestID, "by", caller.ID)
	return req, nil
}

// AdvanceOnFulfillmentEvent rolls a child fulfillment status change up into
// the request status. Idempotent per event type: re-delivering an already
// advanced roll-up is a no-op, never an error, and never a regression.
func (s *Service) AdvanceOnFulfillmentEvent(ctx context.Context, requestID string, event FulfillmentEvent) error {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}

	current := Status(req.Status)
	var next Status
	switch event {
	case EventFulfillmentCreated:
		next = StatusAwaitingFulfillment
		if current != StatusOngoing {
			return nil
		}
	case EventFulfillmentDispatched:
		next = StatusInTransit
		if current != StatusAwaitingFulfillment {
			return nil
		}
	case EventAllFulfillmentsDelivered:
		next = StatusDelivered
		if current != StatusInTransit && current != StatusAwaitingFulfillment {
			return nil
		}
	default:
		return fault.Invalid(fault.ReasonInvalidField, "unknown fulfillment event %q", event)
	}

	// Monotonicity guard; a stale re-read must never move the status back.
	if rank[next] <= rank[current] {
		return nil
	}

	req.Status = string(next)
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		return fault.Internal(err)
	}

	s.log.Info("request advanced", "request_id", requestID, "event", string(event), "status", string(next))
	return nil
}
