package inventory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/reliefmesh/reliefmesh-go/internal/fault"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/inventory"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
	"github.com/reliefmesh/reliefmesh-go/internal/store/memory"
)

var (
	supplierUser = identity.Identity{ID: "sup-owner", DisplayName: "Depot", Role: identity.RoleSupplier}
	stranger     = identity.Identity{ID: "somebody", Role: identity.RoleSupplier}
)

func setup(t *testing.T) (*inventory.Service, string) {
	t.Helper()
	backend := memory.New()
	sup := &store.SupplierProfile{ID: "sup-1", OwnerID: supplierUser.ID, Name: "Depot"}
	if err := backend.CreateSupplier(context.Background(), sup); err != nil {
		t.Fatal(err)
	}
	return inventory.NewService(backend, nil), sup.ID
}

func TestCreateAndOwnership(t *testing.T) {
	svc, supID := setup(t)
	ctx := context.Background()

	if _, err := svc.CreateItem(ctx, supplierUser, supID, inventory.ItemInput{Name: "Blankets"}); !fault.IsCode(err, fault.CodeValidation) {
		t.Errorf("missing category = %v", err)
	}

	item, err := svc.CreateItem(ctx, supplierUser, supID, inventory.ItemInput{
		Category: "Shelter", Name: "Blankets", Quantity: 10, LowStockThreshold: 3,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.IsLowStock {
		t.Error("10 > 3 flagged low")
	}

	if _, err := svc.EditItem(ctx, stranger, item.ID, inventory.ItemInput{
		Category: "Shelter", Name: "Blankets", Quantity: 0,
	}); !fault.IsCode(err, fault.CodeNotAuthorized) {
		t.Errorf("edit by stranger = %v", err)
	}
	if err := svc.DeleteItem(ctx, stranger, item.ID); !fault.IsCode(err, fault.CodeNotAuthorized) {
		t.Errorf("delete by stranger = %v", err)
	}
}

func TestSetQuantityRecomputesLowStock(t *testing.T) {
	svc, supID := setup(t)
	ctx := context.Background()
	item, _ := svc.CreateItem(ctx, supplierUser, supID, inventory.ItemInput{
		Category: "Water", Name: "Bottles", Quantity: 100, LowStockThreshold: 20,
	})

	got, err := svc.SetQuantity(ctx, supplierUser, item.ID, 15)
	if err != nil {
		t.Fatalf("SetQuantity: %v", err)
	}
	if !got.IsLowStock {
		t.Error("15 <= 20 not flagged low")
	}

	got, _ = svc.SetQuantity(ctx, supplierUser, item.ID, 50)
	if got.IsLowStock {
		t.Error("50 > 20 still flagged low")
	}

	low, err := svc.LowStock(ctx, supID)
	if err != nil || len(low) != 0 {
		t.Errorf("LowStock = %v, %v", low, err)
	}
}

func TestDecrement(t *testing.T) {
	svc, supID := setup(t)
	ctx := context.Background()
	item, _ := svc.CreateItem(ctx, supplierUser, supID, inventory.ItemInput{
		Category: "Food", Name: "Rations", Quantity: 10, LowStockThreshold: 4,
	})

	got, err := svc.Decrement(ctx, item.ID, 7)
	if err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if got.Quantity != 3 || !got.IsLowStock {
		t.Errorf("after decrement: %+v", got)
	}

	_, err = svc.Decrement(ctx, item.ID, 4)
	if !fault.IsCode(err, fault.CodeInsufficientStock) {
		t.Fatalf("over-decrement = %v", err)
	}
	f := fault.As(err)
	if f.Details["available"] != 3 || f.Details["requested"] != 4 {
		t.Errorf("details = %v", f.Details)
	}

	// The failed decrement mutated nothing.
	current, _ := svc.Get(ctx, item.ID)
	if current.Quantity != 3 {
		t.Errorf("quantity after failed decrement = %d", current.Quantity)
	}

	if _, err := svc.Decrement(ctx, "missing", 1); !fault.IsCode(err, fault.CodeNotFound) {
		t.Errorf("decrement missing item = %v", err)
	}
	if _, err := svc.Decrement(ctx, item.ID, 0); !fault.IsCode(err, fault.CodeValidation) {
		t.Errorf("zero decrement = %v", err)
	}
}

func TestDecrementNeverOversubtracts(t *testing.T) {
	svc, supID := setup(t)
	ctx := context.Background()
	item, _ := svc.CreateItem(ctx, supplierUser, supID, inventory.ItemInput{
		Category: "Water", Name: "Bottles", Quantity: 50, LowStockThreshold: 0,
	})

	const workers = 20
	const each = 5

	var wg sync.WaitGroup
	succeeded := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Decrement(ctx, item.ID, each); err == nil {
				succeeded <- each
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	total := 0
	for n := range succeeded {
		total += n
	}
	if total > 50 {
		t.Fatalf("decremented %d from a stock of 50", total)
	}

	final, _ := svc.Get(ctx, item.ID)
	if final.Quantity != 50-total {
		t.Errorf("final quantity %d, want %d", final.Quantity, 50-total)
	}
	if final.Quantity < 0 {
		t.Fatalf("quantity went negative: %d", final.Quantity)
	}
}
