package ledger_test

import (
	"context"
	"fmt"
	"testing"

	"snapsync/internal/ledger"
	"snapsync/internal/testsupport"
)

func TestInsertIsIdempotentAndCountsProducedOnce(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	ctx := context.Background()

	inserted, err := store.Insert(ctx, ledger.Item{ID: "a.jpg"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to create a row")
	}

	inserted, err = store.Insert(ctx, ledger.Item{ID: "a.jpg"})
	if err != nil {
		t.Fatalf("duplicate Insert failed: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate insert to be a no-op")
	}

	totals, err := store.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.Produced != 1 {
		t.Fatalf("expected produced=1, got %d", totals.Produced)
	}
	if totals.Delivered != 0 {
		t.Fatalf("expected delivered=0, got %d", totals.Delivered)
	}
}

func TestFIFOOrdering(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Insert(ctx, ledger.Item{ID: fmt.Sprintf("item-%d.jpg", i)}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	head, err := store.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if head == nil || head.ID != "item-0.jpg" {
		t.Fatalf("expected FIFO head item-0.jpg, got %#v", head)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for i, item := range items {
		want := fmt.Sprintf("item-%d.jpg", i)
		if item.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, item.ID)
		}
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.Insert(ctx, ledger.Item{ID: "gone.jpg"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Remove(ctx, "gone.jpg"); err != nil {
		t.Fatalf("first Remove failed: %v", err)
	}
	if err := store.Remove(ctx, "gone.jpg"); err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}

	count, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty queue, got %d items", count)
	}
}

func TestMarkDeliveredBumpsCounterOncePerRow(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.Insert(ctx, ledger.Item{ID: "d.jpg"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	removed, err := store.MarkDelivered(ctx, "d.jpg")
	if err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}
	if !removed {
		t.Fatal("expected row removal on first MarkDelivered")
	}

	removed, err = store.MarkDelivered(ctx, "d.jpg")
	if err != nil {
		t.Fatalf("second MarkDelivered failed: %v", err)
	}
	if removed {
		t.Fatal("expected second MarkDelivered to find no row")
	}

	totals, err := store.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.Delivered != 1 {
		t.Fatalf("expected delivered=1, got %d", totals.Delivered)
	}
}

func TestDurabilityAcrossReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store := testsupport.MustOpenLedger(t, cfg)
	lat, lon := 44.8176, 20.4569
	if _, err := store.Insert(ctx, ledger.Item{ID: "persist.jpg", LocationLat: &lat, LocationLon: &lon}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenLedger(t, cfg)
	item, err := reopened.Get(ctx, "persist.jpg")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item == nil {
		t.Fatal("expected item to survive reopen")
	}
	if !item.HasLocation() || *item.LocationLat != lat || *item.LocationLon != lon {
		t.Fatalf("location did not survive reopen: %#v", item)
	}

	totals, err := reopened.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.Produced != 1 {
		t.Fatalf("expected produced=1 after reopen, got %d", totals.Produced)
	}
}

func TestReconcileDropsEntriesWithoutBlobs(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for _, id := range []string{"keep.jpg", "orphan-1.jpg", "orphan-2.jpg"} {
		if _, err := store.Insert(ctx, ledger.Item{ID: id}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	dropped, err := store.Reconcile(ctx, func(id string) bool { return id == "keep.jpg" })
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if dropped != 2 {
		t.Fatalf("expected 2 dropped entries, got %d", dropped)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "keep.jpg" {
		t.Fatalf("unexpected surviving items: %#v", items)
	}
}

func TestItemWithoutLocation(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.Insert(ctx, ledger.Item{ID: "noloc.jpg"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	item, err := store.Get(ctx, "noloc.jpg")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.HasLocation() {
		t.Fatalf("expected no location, got %#v", item)
	}
}
