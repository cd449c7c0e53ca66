// Command evolve trains a population of networks and keeps the champion.
//
// Every generation is written to the SQLite ledger. The best genome is saved
// whenever it improves, and with -record its episodes are replayed into
// Parquet for the viewer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/brensch/neatsnake/config"
	"github.com/brensch/neatsnake/evolve"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/ledger"
	"github.com/brensch/neatsnake/policy"
	"github.com/brensch/neatsnake/store"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults are embedded)")
	generations := flag.Int("generations", 0, "Generations to run (overrides evolution.generations)")
	population := flag.Int("population", 0, "Population size (overrides evolution.population)")
	seed := flag.Int64("seed", 0, "Seed (overrides evaluation.seed)")
	size := flag.Int("size", 0, "Grid side (overrides env.size)")
	record := flag.Bool("record", false, "Record the champion's episodes to Parquet whenever it improves")
	dumpConfig := flag.Bool("print-config", false, "Print the effective config and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = applyFlags(cfg, *generations, *population, *seed, *size, *record)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "evolve:", err)
		os.Exit(1)
	}
	if *dumpConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintln(os.Stderr, "evolve:", err)
			os.Exit(1)
		}
		fmt.Print(out)
		return
	}

	log, err := cfg.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "evolve:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("evolution failed", "err", err)
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, generations, population int, seed int64, size int, record bool) error {
	if generations > 0 {
		cfg.Evolution.Generations = generations
	}
	if population > 0 {
		cfg.Evolution.Population = population
		cfg.Evolution.Elite = min(cfg.Evolution.Elite, population)
	}
	if seed != 0 {
		cfg.Evaluation.Seed = seed
	}
	if size > 0 {
		cfg.Env.Size = size
	}
	if record {
		cfg.Output.Record = true
	}
	return cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Output.Ledger), 0o755); err != nil {
		return err
	}
	l, err := ledger.Open(ctx, cfg.Output.Ledger)
	if err != nil {
		return err
	}
	defer l.Close()

	cfgYAML, err := cfg.YAML()
	if err != nil {
		return err
	}
	runID, err := l.StartRun(ctx, cfgYAML)
	if err != nil {
		return err
	}
	log = log.With("run", runID)

	ev := cfg.Evaluator()
	ev.Logger = log
	trainer, err := evolve.NewTrainer(cfg.TrainerSettings(), ev)
	if err != nil {
		return err
	}
	trainer.Ledger = l
	trainer.RunID = runID
	trainer.Logger = log

	log.Info("evolution started",
		"population", cfg.Evolution.Population,
		"generations", cfg.Evolution.Generations,
		"hidden", cfg.Evolution.Hidden,
		"genome", policy.GenomeSize(cfg.Evolution.Hidden),
		"size", cfg.Env.Size,
		"ledger", cfg.Output.Ledger,
	)

	var champion string
	best, err := trainer.Run(ctx, cfg.Evolution.Generations, func(g evolve.Generation) error {
		top, _ := trainer.Best()
		if top.ID == champion {
			return nil
		}
		champion = top.ID
		if err := policy.SaveFile(cfg.Output.Best, trainer.BestFile()); err != nil {
			return fmt.Errorf("saving champion: %w", err)
		}
		log.Info("new champion", "candidate", top.ID, "fitness", top.Fitness, "path", cfg.Output.Best)
		if cfg.Output.Record {
			return recordChampion(ctx, cfg, ev, trainer.BestFile(), log)
		}
		return nil
	})
	if ferr := l.FinishRun(context.WithoutCancel(ctx), runID); ferr != nil {
		log.Warn("finishing run", "err", ferr)
	}
	if err != nil {
		return err
	}

	stats, err := l.GenerationStats(ctx, runID)
	if err != nil {
		return err
	}
	for _, s := range stats {
		log.Debug("generation summary", "gen", s.Generation, "best", s.Best, "mean", s.Mean)
	}
	log.Info("evolution finished", "best", best.ID, "fitness", best.Fitness, "score", best.Score, "reason", best.Reason)
	return nil
}

// recordChampion replays the champion on the evaluation seeds and writes the
// episodes as one Parquet batch.
func recordChampion(ctx context.Context, cfg *config.Config, ev *harness.Evaluator, f *policy.File, log *slog.Logger) error {
	net, err := policy.NewNetwork(f.Hidden, f.Genome)
	if err != nil {
		return err
	}
	replay := *ev
	replay.Workers = 1
	recorders := make([]*store.Recorder, 0, cfg.Evaluation.Episodes)
	replay.Observe = func(candidateID string, _ int, seed int64) func(harness.StepInfo) {
		rec := store.NewRecorder(candidateID, "evolve", seed)
		recorders = append(recorders, rec)
		return rec.OnStep
	}
	if _, err := replay.EvaluateRepeated(ctx, f.ID, net, cfg.Evaluation.Episodes); err != nil {
		return err
	}

	w, err := store.NewBatchWriter(cfg.Output.Dir)
	if err != nil {
		return err
	}
	for _, rec := range recorders {
		if err := w.WriteEpisode(rec.Rows()); err != nil {
			return err
		}
	}
	path, rows, episodes, err := w.Finalize()
	if err != nil {
		return err
	}
	log.Info("recorded champion", "candidate", f.ID, "path", path, "episodes", episodes, "rows", rows)
	return nil
}
