package store

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/logging"
	"github.com/brensch/neatsnake/rules"
)

func recordEpisode(t *testing.T, seed int64) *Recorder {
	t.Helper()
	env, err := rules.NewEnvironment(rules.Config{Size: 8}, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	rec := NewRecorder("cand-1", "test", seed)
	opts := harness.DefaultOptions()
	opts.OnStep = rec.OnStep
	res, err := harness.Evaluate(context.Background(), env, harness.Constant(game.ActionStraight), opts)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(rec.Rows()) != res.Steps {
		t.Fatalf("recorded %d rows for %d steps", len(rec.Rows()), res.Steps)
	}
	return rec
}

func TestRecorder_RowsDescribeTheEpisode(t *testing.T) {
	rec := recordEpisode(t, 1)
	rows := rec.Rows()

	for i, r := range rows {
		if r.Step != int32(i+1) {
			t.Fatalf("row %d has step %d", i, r.Step)
		}
		if r.EpisodeID != rec.EpisodeID || r.CandidateID != "cand-1" {
			t.Fatalf("row %d ids = %q/%q", i, r.EpisodeID, r.CandidateID)
		}
		if len(r.Features) != rules.NumFeatures {
			t.Fatalf("row %d has %d features", i, len(r.Features))
		}
		if r.HeadX != r.BodyX[0] || r.HeadY != r.BodyY[0] {
			t.Fatalf("row %d head (%d,%d) is not body[0]", i, r.HeadX, r.HeadY)
		}
		if err := r.State().Validate(); err != nil && !r.Terminal {
			t.Fatalf("row %d state invalid: %v", i, err)
		}
	}
	last := rows[len(rows)-1]
	if !last.Terminal || last.Reward != float32(rules.RewardDeath) {
		t.Fatalf("last row = %+v, want terminal death", last)
	}
	// Straight up from (4,4) on 8x8 reaches the wall row after 4 moves.
	if last.HeadY != 0 || len(rows) != 5 {
		t.Fatalf("last head y=%d rows=%d", last.HeadY, len(rows))
	}
}

func TestWriteEpisodeBatchParquetAtomic_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := recordEpisode(t, 1)
	b := recordEpisode(t, 2)
	rows := append(append([]StepRow{}, a.Rows()...), b.Rows()...)

	path, err := WriteEpisodeBatchParquetAtomic(dir, rows)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("batch written to %s, want inside %s", path, dir)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "tmp", "*"))
	if len(leftovers) != 0 {
		t.Fatalf("tmp dir not empty: %v", leftovers)
	}

	got, err := ReadStepsParquet(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("read %d rows want %d", len(got), len(rows))
	}
	for i := range rows {
		if got[i].EpisodeID != rows[i].EpisodeID || got[i].Step != rows[i].Step || got[i].Action != rows[i].Action {
			t.Fatalf("row %d differs: %+v vs %+v", i, got[i], rows[i])
		}
		if len(got[i].BodyX) != len(rows[i].BodyX) {
			t.Fatalf("row %d body length %d want %d", i, len(got[i].BodyX), len(rows[i].BodyX))
		}
	}

	batches, err := ListBatches(dir)
	if err != nil || len(batches) != 1 {
		t.Fatalf("batches=%v err=%v", batches, err)
	}
}

func TestBatchWriter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	for seed := int64(1); seed <= 3; seed++ {
		if err := w.WriteEpisode(recordEpisode(t, seed).Rows()); err != nil {
			t.Fatalf("write episode: %v", err)
		}
	}
	if _, err := os.Stat(w.OutPath()); !os.IsNotExist(err) {
		t.Fatalf("out file visible before Finalize")
	}

	path, rows, episodes, err := w.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if episodes != 3 || rows != w.BufferedRows() {
		t.Fatalf("episodes=%d rows=%d", episodes, rows)
	}
	got, err := ReadStepsParquet(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != rows {
		t.Fatalf("read %d rows want %d", len(got), rows)
	}
	if err := w.WriteEpisode(got); err == nil {
		t.Fatalf("write after finalize should fail")
	}
}

func TestBatchWriter_EmptyFinalizeLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	path, rows, _, err := w.Finalize()
	if err != nil || path != "" || rows != 0 {
		t.Fatalf("finalize = %q %d %v", path, rows, err)
	}
	batches, _ := ListBatches(dir)
	if len(batches) != 0 {
		t.Fatalf("unexpected batches %v", batches)
	}
}

func TestFlushLoop(t *testing.T) {
	dir := t.TempDir()
	in := make(chan []StepRow, 8)
	for seed := int64(1); seed <= 5; seed++ {
		in <- recordEpisode(t, seed).Rows()
	}
	in <- nil
	close(in)

	paths := FlushLoop(dir, 2, in, logging.Discard())
	if len(paths) != 3 {
		t.Fatalf("wrote %d batches want 3 (2+2+1)", len(paths))
	}
	episodes := map[string]bool{}
	for _, p := range paths {
		rows, err := ReadStepsParquet(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		for _, r := range rows {
			episodes[r.EpisodeID] = true
		}
	}
	if len(episodes) != 5 {
		t.Fatalf("found %d episodes want 5", len(episodes))
	}
}

func TestConvertToTraining(t *testing.T) {
	dir := t.TempDir()
	a, b := recordEpisode(t, 1), recordEpisode(t, 2)
	in := filepath.Join(dir, "batch_1.parquet")
	if err := WriteStepsParquet(in, append(append([]StepRow{}, a.Rows()...), b.Rows()...)); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := filepath.Join(dir, "batch_1.train.parquet")
	n, err := ConvertToTraining(in, out, 0.5)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := len(a.Rows()) + len(b.Rows())
	if n != want {
		t.Fatalf("converted %d rows want %d", n, want)
	}
	rows, err := ReadTrainingParquet(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	// Returns restart at each episode boundary.
	for _, rec := range []*Recorder{a, b} {
		var ep []TrainingRow
		for _, r := range rows {
			if r.EpisodeID == rec.EpisodeID {
				ep = append(ep, r)
			}
		}
		steps := rec.Rows()
		if len(ep) != len(steps) {
			t.Fatalf("episode %s has %d rows want %d", rec.EpisodeID, len(ep), len(steps))
		}
		ret := 0.0
		for i := len(steps) - 1; i >= 0; i-- {
			ret = float64(steps[i].Reward) + 0.5*ret
			if ep[i].Return != float32(ret) {
				t.Fatalf("step %d return %v want %v", i, ep[i].Return, ret)
			}
			onehot := [3]float32{ep[i].PolicyP0, ep[i].PolicyP1, ep[i].PolicyP2}
			if onehot[ep[i].Action] != 1 || onehot[0]+onehot[1]+onehot[2] != 1 {
				t.Fatalf("step %d target %v for action %d", i, onehot, ep[i].Action)
			}
		}
	}
}

func TestConvertToTraining_EmptyInputWritesNothing(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "empty.parquet")
	if err := WriteStepsParquet(in, []StepRow{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := filepath.Join(dir, "empty.train.parquet")
	n, err := ConvertToTraining(in, out, 0.9)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output exists: %v", err)
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}
