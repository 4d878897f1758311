// Package chat guards the per-request conversation thread. Authorization is
// resolved into a capability once per call and every operation branches on
// that capability; nothing is cached between calls, so a withdrawal takes
// effect on the very next write.
package chat

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

// ReplayLimit bounds the recent-window read path.
const ReplayLimit = 100

// Kind tags a caller's resolved relationship to a request.
type Kind string

const (
	KindNone                Kind = ""
	KindOverseer            Kind = "overseer"
	KindRequester           Kind = "requester"
	KindResponder           Kind = "responder"
	KindSupplierParticipant Kind = "supplier"
)

// Capability is the resolved relationship of one identity to one request.
// Role is set for responders only. Withdrawn responders keep read access to
// prior history but may not write.
type Capability struct {
	Kind      Kind
	Role      string
	Withdrawn bool
}

// CanRead reports read access to the thread.
func (c Capability) CanRead() bool { return c.Kind != KindNone }

// CanWrite reports write access to the thread.
func (c Capability) CanWrite() bool {
	return c.Kind != KindNone && !(c.Kind == KindResponder && c.Withdrawn)
}

// roleTag is the sender tag stored with each entry.
func (c Capability) roleTag() string {
	if c.Kind == KindResponder {
		return c.Role
	}
	return string(c.Kind)
}

// Store is the slice of the backend the chat service needs.
type Store interface {
	store.ThreadStore
	store.RequestStore
	store.FulfillmentStore
	store.SupplierStore
}

// Notifier receives each appended entry for live fan-out. Publish must not
// block.
type Notifier interface {
	Publish(requestID string, entry *store.ThreadEntry)
}

// Service owns the conversation thread and its authorization.
type Service struct {
	store  Store
	notify Notifier
	log    *slog.Logger
}

func NewService(st Store, log *slog.Logger) *Service {
	return &Service{
		store: st,
		log:   logutil.Component(log, "chat"),
	}
}

// SetNotifier attaches the live channel fan-out. Call before serving.
func (s *Service) SetNotifier(n Notifier) { s.notify = n }

// Resolve computes the caller's capability on a request. The checks run in
// precedence order: overseer, requester, responder, supplier with a
// fulfillment against the request.
func (s *Service) Resolve(ctx context.Context, caller identity.Identity, requestID string) (Capability, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Capability{}, fault.NotFound(fault.ReasonRequestNotFound, "request %s not found", requestID)
		}
		return Capability{}, fault.Internal(err)
	}

	if caller.IsOverseer() {
		return Capability{Kind: KindOverseer}, nil
	}
	if req.RequesterID == caller.ID {
		return Capability{Kind: KindRequester}, nil
	}

	if responder, err := s.store.GetResponder(ctx, requestID, caller.ID); err == nil {
		return Capability{
			Kind:      KindResponder,
			Role:      responder.Role,
			Withdrawn: responder.Status == request.ResponderWithdrawn,
		}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Capability{}, fault.Internal(err)
	}

	if sup, err := s.store.GetSupplierByOwner(ctx, caller.ID); err == nil {
		linked, err := s.store.SupplierLinkedToRequest(ctx, requestID, sup.ID)
		if err != nil {
			return Capability{}, fault.Internal(err)
		}
		if linked {
			return Capability{Kind: KindSupplierParticipant}, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return Capability{}, fault.Internal(err)
	}

	return Capability{}, nil
}

// CanAccess reports whether the caller may read the thread.
func (s *Service) CanAccess(ctx context.Context, caller identity.Identity, requestID string) (bool, error) {
	cap, err := s.Resolve(ctx, caller, requestID)
	if err != nil {
		return false, err
	}
	return cap.CanRead(), nil
}

// AppendMessage appends one entry to the thread. Authorization is resolved
// on every call.
func (s *Service) AppendMessage(ctx context.Context, caller identity.Identity, requestID, body string) (*store.ThreadEntry, error) {
	if body == "" {
		return nil, fault.Invalid(fault.ReasonMissingField, "message body is required").With("field", "body")
	}

	cap, err := s.Resolve(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	if !cap.CanWrite() {
		return nil, fault.NotAuthorized(fault.ReasonNotAuthorized, "identity may not post to this request's channel")
	}

	entry := &store.ThreadEntry{
		RequestID:  requestID,
		SenderID:   caller.ID,
		SenderRole: cap.roleTag(),
		Body:       body,
		Timestamp:  time.Now(),
	}
	if err := s.store.AppendThreadEntry(ctx, entry); err != nil {
		return nil, fault.Internal(err)
	}
	if s.notify != nil {
		s.notify.Publish(requestID, entry)
	}

	s.log.Debug("message appended", "request_id", requestID, "sender", caller.ID, "role_tag", entry.SenderRole)
	return entry, nil
}

// Recent returns the last n entries in order, capped at ReplayLimit. n of 0
// means the full window.
func (s *Service) Recent(ctx context.Context, caller identity.Identity, requestID string, n int) ([]*store.ThreadEntry, error) {
	cap, err := s.Resolve(ctx, caller, requestID)
	if err != nil {
		return nil, err
	}
	if !cap.CanRead() {
		return nil, fault.NotAuthorized(fault.ReasonNotAuthorized, "identity may not read this request's channel")
	}

	if n <= 0 || n > ReplayLimit {
		n = ReplayLimit
	}
	out, err := s.store.RecentThreadEntries(ctx, requestID, n)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}
