package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"factorysim.ai/internal/sim/catalogs"
	"factorysim.ai/internal/sim/tuning"
	"factorysim.ai/internal/sim/world"
)

func TestSQLiteIndex_WriteTickThenQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for tick := uint64(0); tick < 5; tick++ {
		entry := world.TickLogEntry{Tick: tick, Digest: "abc"}
		if tick%2 == 0 {
			entry.Events = []world.Event{
				{Type: world.EventPorterSpawned, Tick: tick, Porter: tick + 1},
				{Type: world.EventCommandRejected, Tick: tick, Code: world.ErrCodeOccupied},
			}
		}
		if err := idx.WriteTick(entry); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Writes after close are ignored.
	if err := idx.WriteTick(world.TickLogEntry{Tick: 99}); err != nil {
		t.Fatalf("WriteTick after close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	n, err := idx.CountEvents(ctx, world.EventPorterSpawned)
	if err != nil || n != 3 {
		t.Fatalf("spawned=%d err=%v want 3", n, err)
	}
	last, ok, err := idx.LastTick(ctx)
	if err != nil || !ok || last != 4 {
		t.Fatalf("last=%d ok=%v err=%v want 4", last, ok, err)
	}
}

func TestSQLiteIndex_EmptyLastTick(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()
	if _, ok, err := idx.LastTick(context.Background()); err != nil || ok {
		t.Fatalf("ok=%v err=%v want empty", ok, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan world.TickLogEntry, 1)}
	s.ch <- world.TickLogEntry{Tick: 1}
	_ = s.WriteTick(world.TickLogEntry{Tick: 2})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	ctx := context.Background()
	got, err := idx.CatalogDigest(ctx, "recipes")
	if err != nil || got != cats.Recipes.Digest {
		t.Fatalf("recipes digest=%q err=%v want %q", got, err, cats.Recipes.Digest)
	}
	if _, err := idx.CatalogDigest(ctx, "tuning"); err != nil {
		t.Fatalf("tuning row: %v", err)
	}
	if err := idx.SetMeta(ctx, "run_id", "r1"); err != nil {
		t.Fatalf("meta: %v", err)
	}
}
