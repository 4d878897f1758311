package supplier_test

import (
	"context"
	"testing"
	"time"

	"github.com/reliefmesh/reliefmesh-go/internal/fault"
	"github.com/reliefmesh/reliefmesh-go/internal/geo"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
	"github.com/reliefmesh/reliefmesh-go/internal/store/memory"
	"github.com/reliefmesh/reliefmesh-go/internal/supplier"

	cachemem "github.com/reliefmesh/reliefmesh-go/internal/cache/memory"
)

func seedBackend(t *testing.T) store.Backend {
	t.Helper()
	backend := memory.New()
	ctx := context.Background()

	suppliers := []*store.SupplierProfile{
		{ID: "near", OwnerID: "o1", Name: "Near Depot", Lat: 35.70, Lng: 51.40},
		{ID: "far", OwnerID: "o2", Name: "Far Depot", Lat: 36.30, Lng: 59.60},
		{ID: "nowhere", OwnerID: "o3", Name: "Unlocated Depot"},
	}
	for _, sup := range suppliers {
		if err := backend.CreateSupplier(ctx, sup); err != nil {
			t.Fatal(err)
		}
	}

	items := []*store.InventoryItem{
		{ID: "i1", SupplierID: "near", Category: "Water", Name: "Bottles", Quantity: 40},
		{ID: "i2", SupplierID: "far", Category: "Water", Name: "Tanks", Quantity: 5},
		{ID: "i3", SupplierID: "nowhere", Category: "Water", Name: "Purifiers", Quantity: 9},
		{ID: "i4", SupplierID: "near", Category: "Water", Name: "Filters", Quantity: 0}, // out of stock
		{ID: "i5", SupplierID: "near", Category: "Food", Name: "Rations", Quantity: 100},
	}
	for _, item := range items {
		if err := backend.CreateItem(ctx, item); err != nil {
			t.Fatal(err)
		}
	}
	return backend
}

func TestFindSuppliersByCategory(t *testing.T) {
	m := supplier.NewMatcher(seedBackend(t), nil, nil)
	ctx := context.Background()

	matches, err := m.FindSuppliers(ctx, "Water", nil)
	if err != nil {
		t.Fatalf("FindSuppliers: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	for _, match := range matches {
		for _, item := range match.Items {
			if item.Quantity <= 0 {
				t.Errorf("out-of-stock item %s in match set", item.ID)
			}
			if item.Category != "Water" {
				t.Errorf("wrong category item %s", item.ID)
			}
		}
	}

	if _, err := m.FindSuppliers(ctx, "", nil); !fault.IsCode(err, fault.CodeValidation) {
		t.Errorf("empty category = %v", err)
	}
}

func TestFindSuppliersDistanceSort(t *testing.T) {
	m := supplier.NewMatcher(seedBackend(t), nil, nil)
	ctx := context.Background()

	// Requester sits effectively at the near depot.
	loc := &geo.Coordinate{Lat: 35.71, Lng: 51.41}
	matches, err := m.FindSuppliers(ctx, "Water", loc)
	if err != nil {
		t.Fatalf("FindSuppliers: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches", len(matches))
	}
	if matches[0].Supplier.ID != "near" || matches[1].Supplier.ID != "far" {
		t.Errorf("order = %s, %s", matches[0].Supplier.ID, matches[1].Supplier.ID)
	}
	if matches[2].Supplier.ID != "nowhere" {
		t.Errorf("unlocated supplier not last: %s", matches[2].Supplier.ID)
	}
	if matches[0].DistanceKm <= 0 || matches[0].DistanceKm >= matches[1].DistanceKm {
		t.Errorf("distances %v, %v", matches[0].DistanceKm, matches[1].DistanceKm)
	}
	want := geo.Distance(*loc, geo.Coordinate{Lat: 35.70, Lng: 51.40})
	if matches[0].DistanceKm != want {
		t.Errorf("near distance = %v, want %v", matches[0].DistanceKm, want)
	}
}

func TestFindSuppliersCached(t *testing.T) {
	backend := seedBackend(t)
	c := cachemem.New(time.Minute, time.Minute)
	defer c.Close()
	m := supplier.NewMatcher(backend, c, nil)
	ctx := context.Background()

	first, err := m.FindSuppliers(ctx, "Water", nil)
	if err != nil {
		t.Fatal(err)
	}

	// A new item within the TTL is invisible: the match set is served from
	// the cache.
	backend.CreateItem(ctx, &store.InventoryItem{
		ID: "late", SupplierID: "far", Category: "Water", Name: "Late Tanks", Quantity: 3,
	})
	second, err := m.FindSuppliers(ctx, "Water", nil)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, match := range second {
		total += len(match.Items)
	}
	want := 0
	for _, match := range first {
		want += len(match.Items)
	}
	if total != want {
		t.Errorf("cached match set grew from %d to %d items", want, total)
	}

	// The location annotation still applies on a cache hit.
	loc := &geo.Coordinate{Lat: 35.71, Lng: 51.41}
	annotated, err := m.FindSuppliers(ctx, "Water", loc)
	if err != nil {
		t.Fatal(err)
	}
	if annotated[0].Supplier.ID != "near" || annotated[0].DistanceKm <= 0 {
		t.Errorf("annotation on cache hit: %+v", annotated[0])
	}
}
