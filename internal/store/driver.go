// Package store provides persistence primitives and driver abstractions for
// the coordination core. Records are plain structs with gorm and json tags;
// status fields are strings whose canonical enumerations live in the owning
// domain packages.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStatusConflict    = errors.New("status conflict")
	ErrClosed            = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use and must serialize
// writes to the same record (per-entity linearizability).
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, sqlite).
	Name() string
}

// Backend is the full persistence surface a driver provides.
type Backend interface {
	Driver
	RequestStore
	ThreadStore
	FulfillmentStore
	InventoryStore
	SupplierStore
	OrganizationStore
	UserStore
	FeedbackStore
}

// RequestStore defines operations for aid request persistence.
// Requests are never physically deleted; terminal states are retained
// for audit.
type RequestStore interface {
	CreateRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	UpdateRequest(ctx context.Context, req *Request) error

	// ClaimPrimaryResponder persists req only while the stored request has no
	// primary responder yet. Returns ErrStatusConflict when another responder
	// claimed the slot first; the write is discarded.
	ClaimPrimaryResponder(ctx context.Context, req *Request) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]*Request, error)

	// AddResponder appends a responder entry. Returns ErrAlreadyExists if the
	// identity is already attached to the request.
	AddResponder(ctx context.Context, r *Responder) error
	GetResponder(ctx context.Context, requestID, identityID string) (*Responder, error)
	UpdateResponder(ctx context.Context, r *Responder) error

	// ListResponders returns the responders of a request ordered by join time.
	ListResponders(ctx context.Context, requestID string) ([]*Responder, error)
}

// RequestFilter narrows ListRequests.
type RequestFilter struct {
	Status      string
	Category    string
	RequesterID string
}

// ThreadStore defines operations for the per-request conversation log.
// The log is append-only; entries are never updated or deleted.
type ThreadStore interface {
	AppendThreadEntry(ctx context.Context, e *ThreadEntry) error

	// RecentThreadEntries returns the last n entries of a request's thread in
	// chronological order. This is the bounded replay read path.
	RecentThreadEntries(ctx context.Context, requestID string, n int) ([]*ThreadEntry, error)
}

// FulfillmentStore defines operations for fulfillment request persistence.
type FulfillmentStore interface {
	CreateFulfillment(ctx context.Context, f *FulfillmentRequest) error
	GetFulfillment(ctx context.Context, id string) (*FulfillmentRequest, error)
	UpdateFulfillment(ctx context.Context, f *FulfillmentRequest) error

	// TransitionFulfillment persists f only while the stored status still
	// equals from. Returns ErrStatusConflict when a concurrent writer moved
	// the status first; the write is discarded. This is how callers serialize
	// competing state transitions on one fulfillment.
	TransitionFulfillment(ctx context.Context, f *FulfillmentRequest, from string) error

	// ClaimFulfillmentRating persists f only while the stored fulfillment is
	// still unrated. Returns ErrStatusConflict when a rating already landed.
	ClaimFulfillmentRating(ctx context.Context, f *FulfillmentRequest) error
	ListFulfillmentsByRequest(ctx context.Context, requestID string) ([]*FulfillmentRequest, error)
	ListFulfillmentsBySupplier(ctx context.Context, supplierID string) ([]*FulfillmentRequest, error)

	// SupplierLinkedToRequest reports whether any fulfillment request links the
	// supplier to the aid request. Used by chat authorization.
	SupplierLinkedToRequest(ctx context.Context, requestID, supplierID string) (bool, error)
}

// InventoryStore defines operations for inventory item persistence.
type InventoryStore interface {
	CreateItem(ctx context.Context, item *InventoryItem) error
	GetItem(ctx context.Context, id string) (*InventoryItem, error)

	// UpdateItem persists direct owner edits. isLowStock must be recomputed by
	// the caller before the write.
	UpdateItem(ctx context.Context, item *InventoryItem) error
	DeleteItem(ctx context.Context, id string) error
	ListItemsBySupplier(ctx context.Context, supplierID string) ([]*InventoryItem, error)

	// ListItemsByCategory returns items of a category, optionally only those
	// with quantity > 0.
	ListItemsByCategory(ctx context.Context, category string, inStockOnly bool) ([]*InventoryItem, error)

	// DecrementQuantity atomically subtracts qty from the item's quantity and
	// recomputes isLowStock, as a single conditional update. Returns
	// ErrInsufficientStock if qty exceeds the quantity at the moment of the
	// attempt, ErrNotFound if the item does not exist. Two concurrent calls
	// must never jointly oversubtract.
	DecrementQuantity(ctx context.Context, itemID string, qty int) (*InventoryItem, error)
}

// SupplierStore defines operations for supplier profile persistence.
type SupplierStore interface {
	CreateSupplier(ctx context.Context, s *SupplierProfile) error
	GetSupplier(ctx context.Context, id string) (*SupplierProfile, error)

	// GetSupplierByOwner resolves the supplier profile owned by an identity.
	GetSupplierByOwner(ctx context.Context, ownerID string) (*SupplierProfile, error)
	UpdateSupplier(ctx context.Context, s *SupplierProfile) error
	ListSuppliers(ctx context.Context) ([]*SupplierProfile, error)

	// AddRatingSample appends one rating sample to the supplier's aggregate,
	// updating sum, count, and average atomically.
	AddRatingSample(ctx context.Context, supplierID string, rating int) (*SupplierProfile, error)
}

// OrganizationStore defines operations for relief org profile persistence.
type OrganizationStore interface {
	CreateOrg(ctx context.Context, o *Organization) error
	GetOrg(ctx context.Context, id string) (*Organization, error)
	GetOrgByOwner(ctx context.Context, ownerID string) (*Organization, error)
	UpdateOrg(ctx context.Context, o *Organization) error
	ListOrgs(ctx context.Context) ([]*Organization, error)
}

// UserStore defines operations for user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	ListUsers(ctx context.Context) ([]*User, error)
}

// FeedbackStore defines operations for feedback collection.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, f *Feedback) error
	ListFeedback(ctx context.Context) ([]*Feedback, error)
}
