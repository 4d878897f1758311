// Package supplier implements the supplier matcher: a read-only query that
// joins supplier profiles with their in-stock items of a category, ranked by
// distance when the requester's location is known.
package supplier

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/reliefmesh/reliefmesh-go/internal/cache"
	"github.com/reliefmesh/reliefmesh-go/internal/fault"
	"github.com/reliefmesh/reliefmesh-go/internal/geo"
	"github.com/reliefmesh/reliefmesh-go/internal/platform/logutil"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// Store is the slice of the backend the matcher reads from.
type Store interface {
	store.SupplierStore
	store.InventoryStore
}

// Match is one supplier able to serve a category, with the in-stock subset
// of its ledger that matched. DistanceKm is set only when the query carried
// a requester location.
type Match struct {
	Supplier   *store.SupplierProfile `json:"supplier"`
	Items      []*store.InventoryItem `json:"items"`
	DistanceKm float64                `json:"distance_km,omitempty"`
}

// Matcher answers "which suppliers can serve this category right now".
type Matcher struct {
	store Store
	cache cache.Cache
	log   *slog.Logger
}

// NewMatcher creates the matcher. cache may be nil to disable caching.
func NewMatcher(st Store, c cache.Cache, log *slog.Logger) *Matcher {
	return &Matcher{
		store: st,
		cache: c,
		log:   logutil.Component(log, "supplier"),
	}
}

// FindSuppliers returns suppliers with in-stock items in the category. When
// a location is given the result is sorted by haversine distance ascending,
// suppliers without coordinates last. The category match set is cached for a
// short TTL; the distance annotation is applied after the cache read, so one
// cache entry serves every requester location.
func (m *Matcher) FindSuppliers(ctx context.Context, category string, location *geo.Coordinate) ([]Match, error) {
	if category == "" {
		return nil, fault.Invalid(fault.ReasonMissingField, "category is required").With("field", "category")
	}
	if location != nil && !location.Valid() {
		return nil, fault.Invalid(fault.ReasonInvalidField, "coordinate out of bounds").With("field", "location")
	}

	matches, err := m.categoryMatches(ctx, category)
	if err != nil {
		return nil, err
	}

	if location != nil {
		for i := range matches {
			sup := matches[i].Supplier
			matches[i].DistanceKm = geo.Distance(*location, geo.Coordinate{Lat: sup.Lat, Lng: sup.Lng})
		}
		sort.SliceStable(matches, func(i, j int) bool {
			a, b := matches[i], matches[j]
			aZero := a.Supplier.Lat == 0 && a.Supplier.Lng == 0
			bZero := b.Supplier.Lat == 0 && b.Supplier.Lng == 0
			if aZero != bZero {
				return bZero
			}
			return a.DistanceKm < b.DistanceKm
		})
	}

	return matches, nil
}

func (m *Matcher) categoryMatches(ctx context.Context, category string) ([]Match, error) {
	key := "supplier_match:" + category

	if m.cache != nil {
		if raw, err := m.cache.Get(ctx, key); err == nil {
			var cached []Match
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			// Unreadable entry; fall through and rebuild.
			_ = m.cache.Delete(ctx, key)
		}
	}

	items, err := m.store.ListItemsByCategory(ctx, category, true)
	if err != nil {
		return nil, fault.Internal(err)
	}

	bySupplier := make(map[string][]*store.InventoryItem)
	order := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := bySupplier[item.SupplierID]; !seen {
			order = append(order, item.SupplierID)
		}
		bySupplier[item.SupplierID] = append(bySupplier[item.SupplierID], item)
	}

	matches := make([]Match, 0, len(order))
	for _, supplierID := range order {
		sup, err := m.store.GetSupplier(ctx, supplierID)
		if err != nil {
			// An item whose supplier vanished is skipped, not fatal.
			m.log.Warn("orphaned inventory item", "supplier_id", supplierID, "category", category)
			continue
		}
		matches = append(matches, Match{Supplier: sup, Items: bySupplier[supplierID]})
	}

	if m.cache != nil {
		if raw, err := json.Marshal(matches); err == nil {
			_ = m.cache.Set(ctx, key, raw, cache.TTLSupplierMatch)
		}
	}

	return matches, nil
}

// RatingOf returns a supplier's current rating average, zero when unrated.
func RatingOf(sup *store.SupplierProfile) decimal.Decimal {
	if sup.RatingCount == 0 {
		return decimal.Zero
	}
	return sup.RatingAverage
}
