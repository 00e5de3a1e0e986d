package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"lockstep.rts/internal/persistence/snapshot"
	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/catalogs"
	"lockstep.rts/internal/sim/tuning"
	"lockstep.rts/internal/sim/world"
)

func TestSQLiteIndex_TicksCommandsSnapshots(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, err := OpenSQLite(filepath.Join(dir, "index", "match.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tune := tuning.Defaults()
	if err := idx.UpsertCatalogs("../../../configs", cats, tune); err != nil {
		t.Fatalf("upsert catalogs: %v", err)
	}

	_ = idx.WriteTick(world.TickLogEntry{Tick: 1, Digest: "d1"})
	_ = idx.WriteTick(world.TickLogEntry{
		Tick: 2,
		Commands: []protocol.Command{
			protocol.MoveUnits("self", []string{"U0.2"}, 10, 10),
			protocol.BuildUnit("enemy", "B0.3", "builder"),
			protocol.SetRallyPoint("self", "B0.1", 5, 5),
		},
		Digest: "d2",
	})

	e := world.New(tune, cats)
	s, err := e.NewMatch()
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	snap := snapshot.New("m1", s)
	idx.RecordSnapshot(filepath.Join(dir, "snapshots", snapshot.FileName(0)), snap)

	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if d, err := idx.TickDigest(ctx, 2); err != nil || d != "d2" {
		t.Fatalf("tick 2 digest=%q err=%v", d, err)
	}
	if _, err := idx.TickDigest(ctx, 3); err == nil {
		t.Fatalf("expected missing tick error")
	}
	if n, err := idx.PlayerCommands(ctx, "self", 0, 10); err != nil || n != 2 {
		t.Fatalf("self commands=%d err=%v", n, err)
	}
	if n, err := idx.PlayerCommands(ctx, "enemy", 3, 10); err != nil || n != 0 {
		t.Fatalf("enemy commands after tick 2=%d err=%v", n, err)
	}
	tick, path, err := idx.LatestSnapshot(ctx)
	if err != nil || tick != 0 || filepath.Base(path) != "0.snap.zst" {
		t.Fatalf("latest snapshot tick=%d path=%q err=%v", tick, path, err)
	}
	if d, err := idx.CatalogDigest(ctx, "units"); err != nil || d != cats.Units.Digest {
		t.Fatalf("units digest=%q err=%v", d, err)
	}
	if d, err := idx.CatalogDigest(ctx, "tuning"); err != nil || d != tune.Digest() {
		t.Fatalf("tuning digest=%q err=%v", d, err)
	}
	if idx.Dropped() != 0 {
		t.Fatalf("dropped=%d", idx.Dropped())
	}
}

func TestSQLiteIndex_CloseIsIdempotent(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "a.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// Writes after close are ignored.
	if err := idx.WriteTick(world.TickLogEntry{Tick: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
}
