package gate

import (
	"context"
	"testing"
)

func TestResolveDirectLookup(t *testing.T) {
	store := newFakeStore()
	store.seedRecord(t, TransferRecord{GUID: "g1", SourceURL: "https://cdn.example/f.exe"})
	store.seedBinding("g1", 42)
	b := NewBinder(store, nil)

	rec, err := b.Resolve(context.Background(), &DownloadItem{ID: 42, URL: "https://other"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec == nil || rec.GUID != "g1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestHeuristicBindFirstInsertedWins(t *testing.T) {
	store := newFakeStore()
	url := "https://cdn.example/f.exe"
	store.seedRecord(t, TransferRecord{GUID: "g1", SourceURL: url})
	store.seedRecord(t, TransferRecord{GUID: "g2", SourceURL: url})
	b := NewBinder(store, nil)

	rec, err := b.Resolve(context.Background(), &DownloadItem{ID: 42, URL: url})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec == nil || rec.GUID != "g1" {
		t.Fatalf("bound %+v, want first inserted g1", rec)
	}

	if got := string(store.data[bindingKey(42)]); got != "g1" {
		t.Fatalf("binding key holds %q", got)
	}
	if got := string(store.data[reverseKey("g1")]); got != "42" {
		t.Fatalf("reverse key holds %q", got)
	}
	stored := store.record(t, "g1")
	if stored.DownloadID == nil || *stored.DownloadID != 42 {
		t.Fatalf("record missing download id: %+v", stored)
	}
}

func TestHeuristicBindPrefersFinalURL(t *testing.T) {
	store := newFakeStore()
	store.seedRecord(t, TransferRecord{GUID: "g1", SourceURL: "https://cdn.example/real.exe"})
	b := NewBinder(store, nil)

	rec, err := b.Resolve(context.Background(), &DownloadItem{
		ID:       7,
		URL:      "https://redirector.example/go",
		FinalURL: "https://cdn.example/real.exe",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec == nil || rec.GUID != "g1" {
		t.Fatalf("final url not used for matching: %+v", rec)
	}
}

func TestResolveMissReturnsNilNil(t *testing.T) {
	store := newFakeStore()
	store.seedRecord(t, TransferRecord{GUID: "g1", SourceURL: "https://elsewhere"})
	b := NewBinder(store, nil)

	rec, err := b.Resolve(context.Background(), &DownloadItem{ID: 42, URL: "https://cdn.example/f.exe"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected absence, got %+v", rec)
	}
}

func TestResolveConvergesToDirectPath(t *testing.T) {
	store := newFakeStore()
	url := "https://cdn.example/f.exe"
	store.seedRecord(t, TransferRecord{GUID: "g1", SourceURL: url})
	b := NewBinder(store, nil)
	ctx := context.Background()
	item := &DownloadItem{ID: 42, URL: url}

	if _, err := b.Resolve(ctx, item); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	// Direct path now serves the mapping without consulting the index.
	store.index = nil
	rec, err := b.Resolve(ctx, item)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if rec == nil || rec.GUID != "g1" {
		t.Fatalf("direct lookup miss after bind: %+v", rec)
	}
}

func TestBoundDownloadID(t *testing.T) {
	store := newFakeStore()
	store.seedBinding("g1", 42)
	b := NewBinder(store, nil)
	ctx := context.Background()

	id, ok := b.BoundDownloadID(ctx, "g1")
	if !ok || id != 42 {
		t.Fatalf("bound id = %d/%v, want 42/true", id, ok)
	}
	if _, ok := b.BoundDownloadID(ctx, "missing"); ok {
		t.Fatal("unbound guid reported bound")
	}

	store.data[reverseKey("g2")] = []byte("not a number")
	if _, ok := b.BoundDownloadID(ctx, "g2"); ok {
		t.Fatal("malformed reverse binding reported bound")
	}
}
