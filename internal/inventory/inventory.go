// Package inventory implements the supplier stock ledger. Quantities are
// never negative: the decrement is a single conditional mutation in the
// store driver, and a failed condition surfaces as InsufficientStock.
package inventory

import (
	"context"
	"errors"
	"log/slog"

	"github.com/reliefmesh/reliefmesh-go/internal/fault"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/platform/logutil"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Store is the slice of the backend the ledger needs.
type Store interface {
	store.InventoryStore
	store.SupplierStore
}

// Service owns all InventoryItem mutations.
type Service struct {
	store Store
	log   *slog.Logger
}

func NewService(st Store, log *slog.Logger) *Service {
	return &Service{
		store: st,
		log:   logutil.Component(log, "inventory"),
	}
}

// ItemInput is the payload for creating or editing a stock record.
type ItemInput struct {
	Category          string
	Name              string
	Quantity          int
	LowStockThreshold int
}

func (in ItemInput) validate() error {
	if in.Category == "" {
		return fault.Invalid(fault.ReasonMissingField, "category is required").With("field", "category")
	}
	if in.Name == "" {
		return fault.Invalid(fault.ReasonMissingField, "name is required").With("field", "name")
	}
	if in.Quantity < 0 {
		return fault.Invalid(fault.ReasonInvalidField, "quantity cannot be negative").With("field", "quantity")
	}
	if in.LowStockThreshold < 0 {
		return fault.Invalid(fault.ReasonInvalidField, "low stock threshold cannot be negative").
			With("field", "low_stock_threshold")
	}
	return nil
}

// ownedSupplier resolves the caller's supplier profile and checks it matches
// supplierID. Overseers pass for any supplier.
func (s *Service) ownedSupplier(ctx context.Context, caller identity.Identity, supplierID string) (*store.SupplierProfile, error) {
	sup, err := s.store.GetSupplier(ctx, supplierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fault.NotFound(fault.ReasonSupplierNotFound, "supplier %s not found", supplierID)
		}
		return nil, fault.Internal(err)
	}
	if sup.OwnerID != caller.ID && !caller.IsOverseer() {
		return nil, fault.NotAuthorized(fault.ReasonNotOwner, "only the supplier owner may manage its inventory")
	}
	return sup, nil
}

// CreateItem adds a stock record under the caller's supplier profile.
func (s *Service) CreateItem(ctx context.Context, caller identity.Identity, supplierID string, in ItemInput) (*store.InventoryItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.ownedSupplier(ctx, caller, supplierID); err != nil {
		return nil, err
	}

	item := &store.InventoryItem{
		ID:                identity.NewID(),
		SupplierID:        supplierID,
		Category:          in.Category,
		Name:              in.Name,
		Quantity:          in.Quantity,
		LowStockThreshold: in.LowStockThreshold,
		IsLowStock:        in.Quantity <= in.LowStockThreshold,
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, fault.Internal(err)
	}

	s.log.Info("item created", "item_id", item.ID, "supplier_id", supplierID, "category", item.Category)
	return item, nil
}

// Get returns one stock record.
func (s *Service) Get(ctx context.Context, itemID string) (*store.InventoryItem, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fault.NotFound(fault.ReasonItemNotFound, "item %s not found", itemID)
		}
		return nil, fault.Internal(err)
	}
	return item, nil
}

// EditItem updates a stock record's descriptive fields and quantity. The
// low-stock flag is recomputed with the mutation.
func (s *Service) EditItem(ctx context.Context, caller identity.Identity, itemID string, in ItemInput) (*store.InventoryItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	item, err := s.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedSupplier(ctx, caller, item.SupplierID); err != nil {
		return nil, err
	}

	item.Category = in.Category
	item.Name = in.Name
	item.Quantity = in.Quantity
	item.LowStockThreshold = in.LowStockThreshold
	item.IsLowStock = item.Quantity <= item.LowStockThreshold
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, fault.Internal(err)
	}
	return item, nil
}

// SetQuantity replaces the absolute quantity, recomputing the low-stock flag.
func (s *Service) SetQuantity(ctx context.Context, caller identity.Identity, itemID string, quantity int) (*store.InventoryItem, error) {
	if quantity < 0 {
		return nil, fault.Invalid(fault.ReasonInvalidField, "quantity cannot be negative").With("field", "quantity")
	}
	item, err := s.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedSupplier(ctx, caller, item.SupplierID); err != nil {
		return nil, err
	}

	item.Quantity = quantity
	item.IsLowStock = item.Quantity <= item.LowStockThreshold
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, fault.Internal(err)
	}
	return item, nil
}

// DeleteItem removes a stock record.
func (s *Service) DeleteItem(ctx context.Context, caller identity.Identity, itemID string) error {
	item, err := s.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if _, err := s.ownedSupplier(ctx, caller, item.SupplierID); err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		return fault.Internal(err)
	}
	s.log.Info("item deleted", "item_id", itemID)
	return nil
}

// Decrement atomically subtracts qty from the item's stock. It never drives
// the quantity below zero: when stock is short the mutation does not happen
// and InsufficientStock is returned with the available quantity.
func (s *Service) Decrement(ctx context.Context, itemID string, qty int) (*store.InventoryItem, error) {
	if qty <= 0 {
		return nil, fault.Invalid(fault.ReasonInvalidField, "decrement quantity must be positive").With("field", "quantity")
	}

	item, err := s.store.DecrementQuantity(ctx, itemID, qty)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, fault.NotFound(fault.ReasonItemNotFound, "item %s not found", itemID)
		case errors.Is(err, store.ErrInsufficientStock):
			available := 0
			if current, gerr := s.store.GetItem(ctx, itemID); gerr == nil {
				available = current.Quantity
			}
			return nil, fault.InsufficientStock("item has %d in stock, %d requested", available, qty).
				With("available", available).
				With("requested", qty)
		default:
			return nil, fault.Internal(err)
		}
	}

	if item.IsLowStock {
		s.log.Warn("item low on stock", "item_id", item.ID, "quantity", item.Quantity, "threshold", item.LowStockThreshold)
	}
	return item, nil
}

// ListBySupplier returns a supplier's full ledger.
func (s *Service) ListBySupplier(ctx context.Context, supplierID string) ([]*store.InventoryItem, error) {
	out, err := s.store.ListItemsBySupplier(ctx, supplierID)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}

// ListByCategory returns items in a category, optionally in-stock only.
func (s *Service) ListByCategory(ctx context.Context, category string, inStockOnly bool) ([]*store.InventoryItem, error) {
	out, err := s.store.ListItemsByCategory(ctx, category, inStockOnly)
	if err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}

// LowStock filters a supplier's ledger down to items at or under their
// threshold.
func (s *Service) LowStock(ctx context.Context, supplierID string) ([]*store.InventoryItem, error) {
	items, err := s.ListBySupplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	low := items[:0:0]
	for _, item := range items {
		if item.IsLowStock {
			low = append(low, item)
		}
	}
	return low, nil
}
