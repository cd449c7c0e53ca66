package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/brensch/neatsnake/config"
	"github.com/brensch/neatsnake/ledger"
	"github.com/brensch/neatsnake/logging"
	"github.com/brensch/neatsnake/policy"
	"github.com/brensch/neatsnake/store"
)

func TestRun_SavesChampionAndRecords(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Output.Ledger = filepath.Join(dir, "ledger.db")
	cfg.Output.Best = filepath.Join(dir, "best.json")
	cfg.Output.Dir = filepath.Join(dir, "episodes")
	cfg.Evaluation.Episodes = 2
	if err := applyFlags(cfg, 2, 6, 7, 8, true); err != nil {
		t.Fatalf("flags: %v", err)
	}
	cfg.Evolution.Hidden = 4
	cfg.Evolution.Elite = 2

	ctx := context.Background()
	if err := run(ctx, cfg, logging.Discard()); err != nil {
		t.Fatalf("run: %v", err)
	}

	net, f, err := policy.LoadNetwork(cfg.Output.Best)
	if err != nil {
		t.Fatalf("load champion: %v", err)
	}
	if net.Hidden() != 4 || f.ID == "" {
		t.Fatalf("champion file %+v", f)
	}

	batches, err := store.ListBatches(cfg.Output.Dir)
	if err != nil || len(batches) == 0 {
		t.Fatalf("batches=%v err=%v", batches, err)
	}
	rows, err := store.ReadStepsParquet(batches[0])
	if err != nil || len(rows) == 0 {
		t.Fatalf("rows=%d err=%v", len(rows), err)
	}
	if rows[0].Source != "evolve" || rows[0].Size != 8 {
		t.Fatalf("row %+v", rows[0])
	}

	l, err := ledger.Open(ctx, cfg.Output.Ledger)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer l.Close()
	runs, err := l.Runs(ctx)
	if err != nil || len(runs) != 1 || runs[0].FinishedAt.IsZero() {
		t.Fatalf("runs=%+v err=%v", runs, err)
	}
	stats, err := l.GenerationStats(ctx, runs[0].ID)
	if err != nil || len(stats) != 2 {
		t.Fatalf("stats=%+v err=%v", stats, err)
	}
}
