// Package memory implements an in-memory persistence driver.
// It backs tests and dev mode; all mutations happen under a single lock so
// conditional updates (stock decrement, rating roll-up) are atomic.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

func init() {
	store.Register("memory", func(cfg *store.DriverConfig) (store.Backend, error) {
		return New(), nil
	})
}

// Driver implements store.Backend with in-memory maps.
type Driver struct {
	mu     sync.RWMutex
	closed bool

	requests     map[string]*store.Request
	responders   map[string][]*store.Responder // keyed by requestID, join order
	thread       map[string][]*store.ThreadEntry
	threadSeq    uint64
	fulfillments map[string]*store.FulfillmentRequest
	items        map[string]*store.InventoryItem
	suppliers    map[string]*store.SupplierProfile
	orgs         map[string]*store.Organization
	users        map[string]*store.User
	feedback     []*store.Feedback

	// Secondary indexes
	supplierByOwner map[string]string // ownerID -> supplierID
	orgByOwner      map[string]string // ownerID -> orgID
	userByName      map[string]string // username -> userID
}

// New creates an empty in-memory driver.
func New() *Driver {
	return &Driver{
		requests:        make(map[string]*store.Request),
		responders:      make(map[string][]*store.Responder),
		thread:          make(map[string][]*store.ThreadEntry),
		fulfillments:    make(map[string]*store.FulfillmentRequest),
		items:           make(map[string]*store.InventoryItem),
		suppliers:       make(map[string]*store.SupplierProfile),
		orgs:            make(map[string]*store.Organization),
		users:           make(map[string]*store.User),
		supplierByOwner: make(map[string]string),
		orgByOwner:      make(map[string]string),
		userByName:      make(map[string]string),
	}
}

func (d *Driver) Name() string { return "memory" }

func (d *Driver) Init(ctx context.Context) error { return nil }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Requests

func (d *Driver) CreateRequest(ctx context.Context, req *store.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.requests[req.ID]; ok {
		return store.ErrAlreadyExists
	}
	now := time.Now()
	req.CreatedAt = now
	req.UpdatedAt = now
	cp := *req
	d.requests[req.ID] = &cp
	return nil
}

func (d *Driver) GetRequest(ctx context.Context, id string) (*store.Request, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	req, ok := d.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (d *Driver) UpdateRequest(ctx context.Context, req *store.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.requests[req.ID]; !ok {
		return store.ErrNotFound
	}
	req.UpdatedAt = time.Now()
	cp := *req
	d.requests[req.ID] = &cp
	return nil
}

func (d *Driver) ClaimPrimaryResponder(ctx context.Context, req *store.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.requests[req.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.PrimaryResponderID != "" {
		return store.ErrStatusConflict
	}
	req.UpdatedAt = time.Now()
	cp := *req
	d.requests[req.ID] = &cp
	return nil
}

func (d *Driver) ListRequests(ctx context.Context, filter store.RequestFilter) ([]*store.Request, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*store.Request
	for _, req := range d.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Category != "" && req.Category != filter.Category {
			continue
		}
		if filter.RequesterID != "" && req.RequesterID != filter.RequesterID {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Responders

func (d *Driver) AddResponder(ctx context.Context, r *store.Responder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.responders[r.RequestID] {
		if existing.IdentityID == r.IdentityID {
			return store.ErrAlreadyExists
		}
	}
	cp := *r
	d.responders[r.RequestID] = append(d.responders[r.RequestID], &cp)
	return nil
}

func (d *Driver) GetResponder(ctx context.Context, requestID, identityID string) (*store.Responder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.responders[requestID] {
		if r.IdentityID == identityID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (d *Driver) UpdateResponder(ctx context.Context, r *store.Responder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.responders[r.RequestID] {
		if existing.IdentityID == r.IdentityID {
			cp := *r
			d.responders[r.RequestID][i] = &cp
			return nil
		}
	}
	return store.ErrNotFound
}

func (d *Driver) ListResponders(ctx context.Context, requestID string) ([]*store.Responder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	list := d.responders[requestID]
	out := make([]*store.Responder, len(list))
	for i, r := range list {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// Thread

func (d *Driver) AppendThreadEntry(ctx context.Context, e *store.ThreadEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threadSeq++
	e.Seq = d.threadSeq
	cp := *e
	d.thread[e.RequestID] = append(d.thread[e.RequestID], &cp)
	return nil
}

func (d *Driver) RecentThreadEntries(ctx context.Context, requestID string, n int) ([]*store.ThreadEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	list := d.thread[requestID]
	if n > 0 && len(list) > n {
		list = list[len(list)-n:]
	}
	out := make([]*store.ThreadEntry, len(list))
	for i, e := range list {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

// Fulfillments

func (d *Driver) CreateFulfillment(ctx context.Context, f *store.FulfillmentRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fulfillments[f.ID]; ok {
		return store.ErrAlreadyExists
	}
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
	cp := *f
	d.fulfillments[f.ID] = &cp
	return nil
}

func (d *Driver) GetFulfillment(ctx context.Context, id string) (*store.FulfillmentRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.fulfillments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (d *Driver) UpdateFulfillment(ctx context.Context, f *store.FulfillmentRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fulfillments[f.ID]; !ok {
		return store.ErrNotFound
	}
	f.UpdatedAt = time.Now()
	cp := *f
	d.fulfillments[f.ID] = &cp
	return nil
}

func (d *Driver) TransitionFulfillment(ctx context.Context, f *store.FulfillmentRequest, from string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.fulfillments[f.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Status != from {
		return store.ErrStatusConflict
	}
	f.UpdatedAt = time.Now()
	cp := *f
	d.fulfillments[f.ID] = &cp
	return nil
}

func (d *Driver) ClaimFulfillmentRating(ctx context.Context, f *store.FulfillmentRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.fulfillments[f.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Rating != 0 {
		return store.ErrStatusConflict
	}
	f.UpdatedAt = time.Now()
	cp := *f
	d.fulfillments[f.ID] = &cp
	return nil
}

func (d *Driver) ListFulfillmentsByRequest(ctx context.Context, requestID string) ([]*store.FulfillmentRequest, error) {
	return d.listFulfillments(func(f *store.FulfillmentRequest) bool { return f.RequestID == requestID })
}

func (d *Driver) ListFulfillmentsBySupplier(ctx context.Context, supplierID string) ([]*store.FulfillmentRequest, error) {
	return d.listFulfillments(func(f *store.FulfillmentRequest) bool { return f.SupplierID == supplierID })
}

func (d *Driver) listFulfillments(match func(*store.FulfillmentRequest) bool) ([]*store.FulfillmentRequest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*store.FulfillmentRequest
	for _, f := range d.fulfillments {
		if match(f) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (d *Driver) SupplierLinkedToRequest(ctx context.Context, requestID, supplierID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, f := range d.fulfillments {
		if f.RequestID == requestID && f.SupplierID == supplierID {
			return true, nil
		}
	}
	return false, nil
}

// Inventory

func (d *Driver) CreateItem(ctx context.Context, item *store.InventoryItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.items[item.ID]; ok {
		return store.ErrAlreadyExists
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	item.IsLowStock = item.Quantity <= item.LowStockThreshold
	cp := *item
	d.items[item.ID] = &cp
	return nil
}

func (d *Driver) GetItem(ctx context.Context, id string) (*store.InventoryItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	item, ok := d.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (d *Driver) UpdateItem(ctx context.Context, item *store.InventoryItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.items[item.ID]; !ok {
		return store.ErrNotFound
	}
	item.UpdatedAt = time.Now()
	item.IsLowStock = item.Quantity <= item.LowStockThreshold
	cp := *item
	d.items[item.ID] = &cp
	return nil
}

func (d *Driver) DeleteItem(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.items, id)
	return nil
}

func (d *Driver) ListItemsBySupplier(ctx context.Context, supplierID string) ([]*store.InventoryItem, error) {
	return d.listItems(func(i *store.InventoryItem) bool { return i.SupplierID == supplierID })
}

func (d *Driver) ListItemsByCategory(ctx context.Context, category string, inStockOnly bool) ([]*store.InventoryItem, error) {
	return d.listItems(func(i *store.InventoryItem) bool {
		if i.Category != category {
			return false
		}
		return !inStockOnly || i.Quantity > 0
	})
}

func (d *Driver) listItems(match func(*store.InventoryItem) bool) ([]*store.InventoryItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*store.InventoryItem
	for _, item := range d.items {
		if match(item) {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DecrementQuantity is the atomic check-and-subtract. The whole operation
// runs under the write lock, so concurrent decrements serialize and the
// quantity can never go negative.
func (d *Driver) DecrementQuantity(ctx context.Context, itemID string, qty int) (*store.InventoryItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if qty > item.Quantity {
		return nil, store.ErrInsufficientStock
	}
	item.Quantity -= qty
	item.IsLowStock = item.Quantity <= item.LowStockThreshold
	item.UpdatedAt = time.Now()
	cp := *item
	return &cp, nil
}

// Suppliers

func (d *Driver) CreateSupplier(ctx context.Context, s *store.SupplierProfile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.suppliers[s.ID]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := d.supplierByOwner[s.OwnerID]; ok {
		return store.ErrAlreadyExists
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	d.suppliers[s.ID] = &cp
	d.supplierByOwner[s.OwnerID] = s.ID
	return nil
}

func (d *Driver) GetSupplier(ctx context.Context, id string) (*store.SupplierProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (d *Driver) GetSupplierByOwner(ctx context.Context, ownerID string) (*store.SupplierProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.supplierByOwner[ownerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d.suppliers[id]
	return &cp, nil
}

func (d *Driver) UpdateSupplier(ctx context.Context, s *store.SupplierProfile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.suppliers[s.ID]; !ok {
		return store.ErrNotFound
	}
	s.UpdatedAt = time.Now()
	cp := *s
	d.suppliers[s.ID] = &cp
	return nil
}

func (d *Driver) ListSuppliers(ctx context.Context) ([]*store.SupplierProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*store.SupplierProfile, 0, len(d.suppliers))
	for _, s := range d.suppliers {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (d *Driver) AddRatingSample(ctx context.Context, supplierID string, rating int) (*store.SupplierProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.suppliers[supplierID]
	if !ok {
		return nil, store.ErrNotFound
	}
	s.RatingSum += int64(rating)
	s.RatingCount++
	s.RatingAverage = decimal.NewFromInt(s.RatingSum).
		DivRound(decimal.NewFromInt(s.RatingCount), 2)
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

// Organizations

func (d *Driver) CreateOrg(ctx context.Context, o *store.Organization) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.orgs[o.ID]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := d.orgByOwner[o.OwnerID]; ok {
		return store.ErrAlreadyExists
	}
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	cp := *o
	d.orgs[o.ID] = &cp
	d.orgByOwner[o.OwnerID] = o.ID
	return nil
}

func (d *Driver) GetOrg(ctx context.Context, id string) (*store.Organization, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (d *Driver) GetOrgByOwner(ctx context.Context, ownerID string) (*store.Organization, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.orgByOwner[ownerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d.orgs[id]
	return &cp, nil
}

func (d *Driver) UpdateOrg(ctx context.Context, o *store.Organization) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.orgs[o.ID]; !ok {
		return store.ErrNotFound
	}
	o.UpdatedAt = time.Now()
	cp := *o
	d.orgs[o.ID] = &cp
	return nil
}

func (d *Driver) ListOrgs(ctx context.Context) ([]*store.Organization, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*store.Organization, 0, len(d.orgs))
	for _, o := range d.orgs {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Users

func (d *Driver) CreateUser(ctx context.Context, u *store.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[u.ID]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := d.userByName[u.Username]; ok {
		return store.ErrAlreadyExists
	}
	u.CreatedAt = time.Now()
	cp := *u
	d.users[u.ID] = &cp
	d.userByName[u.Username] = u.ID
	return nil
}

func (d *Driver) GetUser(ctx context.Context, id string) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *Driver) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.userByName[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d.users[id]
	return &cp, nil
}

func (d *Driver) UpdateUser(ctx context.Context, u *store.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *u
	d.users[u.ID] = &cp
	return nil
}

func (d *Driver) ListUsers(ctx context.Context) ([]*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*store.User, 0, len(d.users))
	for _, u := range d.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Feedback

func (d *Driver) CreateFeedback(ctx context.Context, f *store.Feedback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f.CreatedAt = time.Now()
	cp := *f
	d.feedback = append(d.feedback, &cp)
	return nil
}

func (d *Driver) ListFeedback(ctx context.Context) ([]*store.Feedback, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*store.Feedback, len(d.feedback))
	for i, f := range d.feedback {
		cp := *f
		out[i] = &cp
	}
	return out, nil
}
