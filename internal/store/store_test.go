package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/reliefmesh/reliefmesh-go/internal/store"
	_ "github.com/reliefmesh/reliefmesh-go/internal/store/memory"
	_ "github.com/reliefmesh/reliefmesh-go/internal/store/sqlite"
)

// openDriver creates and initializes a fresh backend for one test.
func openDriver(t *testing.T, name string) store.Backend {
	t.Helper()

	cfg := &store.DriverConfig{Driver: name}
	if name == "sqlite" {
		cfg.DataDir = t.TempDir()
	}

	backend, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", name, err)
	}
	if err := backend.Init(context.Background()); err != nil {
		t.Fatalf("failed to init %s driver: %v", name, err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}

// forEachDriver runs the same suite against every registered backend.
func forEachDriver(t *testing.T, fn func(t *testing.T, b store.Backend)) {
	for _, name := range []string{"memory", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			fn(t, openDriver(t, name))
		})
	}
}

func testRequest(id string) *store.Request {
	return &store.Request{
		ID:            id,
		Category:      "Water",
		Urgency:       "high",
		Description:   "drinking water for 40 households",
		Lat:           35.7,
		Lng:           51.4,
		Address:       "camp 3, north district",
		RequesterID:   "user-requester",
		RequesterName: "Amina",
		Status:        "pending",
	}
}

func testItem(id, supplierID string, qty, threshold int) *store.InventoryItem {
	return &store.InventoryItem{
		ID:                id,
		SupplierID:        supplierID,
		Category:          "Water",
		Name:              "bottled water 1.5L",
		Quantity:          qty,
		LowStockThreshold: threshold,
	}
}

func TestRequestCRUD(t *testing.T) {
	forEachDriver(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()

		req := testRequest("req-1")
		if err := b.CreateRequest(ctx, req); err != nil {
			t.Fatalf("CreateRequest: %v", err)
		}
		if err := b.CreateRequest(ctx, testRequest("req-1")); !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("duplicate create = %v, want ErrAlreadyExists", err)
		}

		got, err := b.GetRequest(ctx, "req-1")
		if err != nil {
			t.Fatalf("GetRequest: %v", err)
		}
		if got.Category != "Water" || got.Status != "pending" {
			t.Errorf("got %+v", got)
		}

		got.Status = "ongoing"
		got.PrimaryResponderID = "org-x"
		if err := b.UpdateRequest(ctx, got); err != nil {
			t.Fatalf("UpdateRequest: %v", err)
		}
		got, _ = b.GetRequest(ctx, "req-1")
		if got.Status != "ongoing" || got.PrimaryResponderID != "org-x" {
			t.Errorf("update not persisted: %+v", got)
		}

		if _, err := b.GetRequest(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("missing get = %v, want ErrNotFound", err)
		}

		list, err := b.ListRequests(ctx, store.RequestFilter{Status: "ongoing"})
		if err != nil || len(list) != 1 {
			t.Errorf("ListRequests = %v, %v; want one match", list, err)
		}
	})
}

func TestRespondersUniqueAndOrdered(t *testing.T) {
	forEachDriver(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		if err := b.CreateRequest(ctx, testRequest("req-1")); err != nil {
			t.Fatal(err)
		}

		base := time.Now()
		for i, identity := range []string{"org-a", "helper-b", "org-c"} {
			r := &store.Responder{
				ID:         fmt.Sprintf("resp-%d", i),
				RequestID:  "req-1",
				IdentityID: identity,
				Name:       identity,
				Role:       "org",
				Status:     "active",
				JoinedAt:   base.Add(time.Duration(i) * time.Second),
			}
			if err := b.AddResponder(ctx, r); err != nil {
				t.Fatalf("AddResponder(%s): %v", identity, err)
			}
		}

		dup := &store.Responder{ID: "resp-dup", RequestID: "req-1", IdentityID: "org-a", JoinedAt: base}
		if err := b.AddResponder(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("duplicate responder = %v, want ErrAlreadyExists", err)
		}

		list, err := b.ListResponders(ctx, "req-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 3 {
			t.Fatalf("len = %d, want 3", len(list))
		}
		if list[0].IdentityID != "org-a" || list[2].IdentityID != "org-c" {
			t.Errorf("wrong order: %v %v %v", list[0].IdentityID, list[1].IdentityID, list[2].IdentityID)
		}

		// Withdrawal marks, never removes.
		list[1].Status = "withdrawn"
		if err := b.UpdateResponder(ctx, list[1]); err != nil {
			t.Fatal(err)
		}
		list, _ = b.ListResponders(ctx, "req-1")
		if len(list) != 3 || list[1].Status != "withdrawn" {
			t.Errorf("withdrawn entry should remain: %+v", list)
		}
	})
}

func TestThreadRecentWindow(t *testing.T) {
	forEachDriver(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		for i := 0; i < 150; i++ {
			e := &store.ThreadEntry{
				RequestID: "req-1",
				SenderID:  "user-requester",
				Body:      fmt.Sprintf("message %d", i),
				Timestamp: time.Now(),
			}
			if err := b.AppendThreadEntry(ctx, e); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}

		recent, err := b.RecentThreadEntries(ctx, "req-1", 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(recent) != 100 {
			t.Fatalf("len = %d, want 100", len(recent))
		}
		if recent[0].Body != "message 50" {
			t.Errorf("window start = %q, want message 50", recent[0].Body)
		}
		if recent[99].Body != "message 149" {
			t.Errorf("window end = %q, want message 149", recent[99].Body)
		}
	})
}

func TestDecrementQuantity(t *testing.T) {
	forEachDriver(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		if err := b.CreateItem(ctx, testItem("item-1", "sup-1", 80, 10)); err != nil {
			t.Fatal(err)
		}

		item, err := b.DecrementQuantity(ctx, "item-1", 30)
		if err != nil {
			t.Fatalf("DecrementQuantity: %v", err)
		}
		if item.Quantity != 50 || item.IsLowStock {
			t.Errorf("after -30: qty=%d low=%v", item.Quantity, item.IsLowStock)
		}

		item, err = b.DecrementQuantity(ctx, "item-1", 50)
		if err != nil {
			t.Fatalf("DecrementQuantity to zero: %v", err)
		}
		if item.Quantity != 0 || !item.IsLowStock {
			t.Errorf("after drain: qty=%d low=%v", item.Quantity, item.IsLowStock)
		}

		if _, err := b.DecrementQuantity(ctx, "item-1", 1); !errors.Is(err, store.ErrInsufficientStock) {
			t.Errorf("oversubtract = %v, want ErrInsufficientStock", err)
		}
		if _, err := b.DecrementQuantity(ctx, "missing", 1); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("missing item = %v, want ErrNotFound", err)
		}
	})
}

// TestDecrementQuantityConcurrent checks the no-negative-stock property: the
// sum of successful decrements never exceeds the starting quantity.
func TestDecrementQuantityConcurrent(t *testing.T) {
	forEachDriver(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		const start = 50
		if err := b.CreateItem(ctx, testItem("item-1", "sup-1", start, 0)); err != nil {
			t.Fatal(err)
		}

		const workers = 20
		const each = 5

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := b.DecrementQuantity(ctx, "item-1", each); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if succeeded*each > start {
			t.Errorf("oversubtraction: %d successes of %d units against %d stock", succeeded, each, start)
		}

		item, err := b.GetItem(ctx, "item-1")
		if err != nil {
			t.Fatal(err)
		}
		if item.Quantity < 0 {
			t.Errorf("negative quantity: %d", item.Quantity)
		}
		if item.Quantity != start-succeeded*each {
			t.Errorf("quantity = %d, want %d", item.Quantity, start-succeeded*each)
		}
	})
}

func TestRatingAggregate(t *testing.T) {
	forEachDriver(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		sup := &store.SupplierProfile{
			ID:                    "sup-1",
			OwnerID:               "user-sup",
			Name:                  "Northern Goods",
			DeliveryEstimateHours: 24,
		}
		if err := b.CreateSupplier(ctx, sup); err != nil {
			t.Fatal(err)
		}

		for _, r := range []int{5, 4, 4} {
			if _, err := b.AddRatingSample(ctx, "sup-1", r); err != nil {
				t.Fatalf("AddRatingSample(%d): %v", r, err)
			}
		}

		got, err := b.GetSupplier(ctx, "sup-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.RatingSum != 13 || got.RatingCount != 3 {
			t.Errorf("sum/count = %d/%d, want 13/3", got.RatingSum, got.RatingCount)
		}
		if got.RatingAverage.StringFixed(2) != "4.33" {
			t.Errorf("average = %s, want 4.33", got.RatingAverage)
		}

		if _, err := b.AddRatingSample(ctx, "missing", 5); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("missing supplier = %v, want ErrNotFound", err)
		}
	})
}

func TestOwnerLookups(t *testing.T) {
	forEachDriver(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()

		org := &store.Organization{ID: "org-1", OwnerID: "user-org", Name: "Red Ribbon Relief"}
		if err := b.CreateOrg(ctx, org); err != nil {
			t.Fatal(err)
		}
		got, err := b.GetOrgByOwner(ctx, "user-org")
		if err != nil || got.ID != "org-1" {
			t.Errorf("GetOrgByOwner = %v, %v", got, err)
		}
		if _, err := b.GetOrgByOwner(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("unknown owner = %v, want ErrNotFound", err)
		}

		user := &store.User{ID: "u-1", Username: "amina", DisplayName: "Amina", Role: "requester"}
		if err := b.CreateUser(ctx, user); err != nil {
			t.Fatal(err)
		}
		if err := b.CreateUser(ctx, &store.User{ID: "u-2", Username: "amina"}); !errors.Is(err, store.ErrAlreadyExists) {
			t.Errorf("duplicate username = %v, want ErrAlreadyExists", err)
		}
		if u, err := b.GetUserByUsername(ctx, "amina"); err != nil || u.ID != "u-1" {
			t.Errorf("GetUserByUsername = %v, %v", u, err)
		}
	})
}

// TestConditionalFulfillmentWrites exercises the guarded write paths: a
// transition whose from-status no longer holds and a second rating claim
// must both lose with ErrStatusConflict and leave the row untouched.
func TestConditionalFulfillmentWrites(t *testing.T) {
	forEachDriver(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		f := &store.FulfillmentRequest{
			ID:           "ful-1",
			RequestID:    "req-1",
			OrgID:        "org-1",
			SupplierID:   "sup-1",
			ItemID:       "item-1",
			RequestedQty: 10,
			Status:       "pending",
		}
		if err := b.CreateFulfillment(ctx, f); err != nil {
			t.Fatal(err)
		}

		f.Status = "accepted"
		f.FulfilledQty = 10
		if err := b.TransitionFulfillment(ctx, f, "pending"); err != nil {
			t.Fatalf("TransitionFulfillment: %v", err)
		}
		got, _ := b.GetFulfillment(ctx, "ful-1")
		if got.Status != "accepted" || got.FulfilledQty != 10 {
			t.Errorf("transition not persisted: %+v", got)
		}

		// A stale writer whose from-status already moved.
		stale := *got
		stale.Status = "rejected"
		if err := b.TransitionFulfillment(ctx, &stale, "pending"); !errors.Is(err, store.ErrStatusConflict) {
			t.Errorf("stale transition = %v, want ErrStatusConflict", err)
		}
		got, _ = b.GetFulfillment(ctx, "ful-1")
		if got.Status != "accepted" {
			t.Errorf("stale transition landed: %s", got.Status)
		}

		ghost := *got
		ghost.ID = "ghost"
		if err := b.TransitionFulfillment(ctx, &ghost, "accepted"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("missing transition = %v, want ErrNotFound", err)
		}

		rated := *got
		rated.Rating = 5
		if err := b.ClaimFulfillmentRating(ctx, &rated); err != nil {
			t.Fatalf("ClaimFulfillmentRating: %v", err)
		}
		again := rated
		again.Rating = 3
		if err := b.ClaimFulfillmentRating(ctx, &again); !errors.Is(err, store.ErrStatusConflict) {
			t.Errorf("second claim = %v, want ErrStatusConflict", err)
		}
		got, _ = b.GetFulfillment(ctx, "ful-1")
		if got.Rating != 5 {
			t.Errorf("rating = %d, want the first claim kept", got.Rating)
		}
	})
}

func TestClaimPrimaryResponder(t *testing.T) {
	forEachDriver(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		if err := b.CreateRequest(ctx, testRequest("req-1")); err != nil {
			t.Fatal(err)
		}

		// Two responders read the request before either claims.
		r1, _ := b.GetRequest(ctx, "req-1")
		r2, _ := b.GetRequest(ctx, "req-1")

		r1.PrimaryResponderID = "org-x"
		r1.PrimaryResponderName = "Org X"
		r1.Status = "ongoing"
		if err := b.ClaimPrimaryResponder(ctx, r1); err != nil {
			t.Fatalf("first claim: %v", err)
		}

		r2.PrimaryResponderID = "org-y"
		r2.PrimaryResponderName = "Org Y"
		r2.Status = "ongoing"
		if err := b.ClaimPrimaryResponder(ctx, r2); !errors.Is(err, store.ErrStatusConflict) {
			t.Errorf("second claim = %v, want ErrStatusConflict", err)
		}

		got, _ := b.GetRequest(ctx, "req-1")
		if got.PrimaryResponderID != "org-x" {
			t.Errorf("primary = %s, want org-x", got.PrimaryResponderID)
		}

		r2.ID = "missing"
		if err := b.ClaimPrimaryResponder(ctx, r2); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("missing claim = %v, want ErrNotFound", err)
		}
	})
}

func TestSupplierLinkedToRequest(t *testing.T) {
	forEachDriver(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		f := &store.FulfillmentRequest{
			ID:           "ful-1",
			RequestID:    "req-1",
			OrgID:        "org-1",
			SupplierID:   "sup-1",
			ItemID:       "item-1",
			RequestedQty: 10,
			Status:       "pending",
		}
		if err := b.CreateFulfillment(ctx, f); err != nil {
			t.Fatal(err)
		}

		linked, err := b.SupplierLinkedToRequest(ctx, "req-1", "sup-1")
		if err != nil || !linked {
			t.Errorf("linked = %v, %v; want true", linked, err)
		}
		linked, err = b.SupplierLinkedToRequest(ctx, "req-1", "sup-2")
		if err != nil || linked {
			t.Errorf("unlinked supplier reported linked")
		}
	})
}
