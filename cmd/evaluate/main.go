// Command evaluate plays one or more policies on the harness and reports
// their fitness, optionally recording every step to Parquet.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/neatsnake/config"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/policy"
	"github.com/brensch/neatsnake/store"
)

var totalSteps atomic.Int64

type options struct {
	configPath string
	policies   string
	episodes   int
	workers    int
	seed       int64
	size       int
	outDir     string
	record     bool
	flushEvery int
	tui        bool
	logFormat  string
	logLevel   string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML config file (defaults are embedded)")
	flag.StringVar(&o.policies, "policy", "greedy", "Comma separated policies: greedy, network:<file>, onnx:<file>")
	flag.IntVar(&o.episodes, "episodes", 0, "Episodes per policy (overrides evaluation.episodes)")
	flag.IntVar(&o.workers, "workers", 0, "Parallel candidates (overrides evaluation.workers)")
	flag.Int64Var(&o.seed, "seed", 0, "Seed of the first episode (overrides evaluation.seed)")
	flag.IntVar(&o.size, "size", 0, "Grid side (overrides env.size)")
	flag.StringVar(&o.outDir, "out-dir", "", "Parquet output directory (overrides output.dir)")
	flag.BoolVar(&o.record, "record", false, "Record every step to Parquet")
	flag.IntVar(&o.flushEvery, "episodes-per-flush", 50, "Episodes buffered per parquet batch")
	flag.BoolVar(&o.tui, "tui", false, "Show a live dashboard instead of logs")
	flag.StringVar(&o.logFormat, "log-format", "", "pretty, json or text (overrides logging.format)")
	flag.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (overrides logging.level)")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintln(os.Stderr, "evaluate:", err)
		os.Exit(1)
	}
}

func loadConfig(o options) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.episodes > 0 {
		cfg.Evaluation.Episodes = o.episodes
	}
	if o.workers > 0 {
		cfg.Evaluation.Workers = o.workers
	}
	if o.seed != 0 {
		cfg.Evaluation.Seed = o.seed
	}
	if o.size > 0 {
		cfg.Env.Size = o.size
	}
	if o.outDir != "" {
		cfg.Output.Dir = o.outDir
	}
	if o.record {
		cfg.Output.Record = true
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, cfg.Validate()
}

func run(o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	// The dashboard owns the terminal.
	var logOut io.Writer = os.Stderr
	if o.tui {
		f, err := os.OpenFile("evaluate.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	log, err := cfg.Logger(logOut)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var candidates []harness.Candidate
	for i, ref := range policyRefs(o.policies) {
		p, closer, err := policy.Load(ref, cfg.OnnxConfig(), cfg.Onnx.Sessions)
		if err != nil {
			return err
		}
		defer closer.Close()
		candidates = append(candidates, harness.Candidate{ID: candidateID(i, ref), Policy: p})
	}
	if len(candidates) == 0 {
		return errors.New("no policy given")
	}

	ev := cfg.Evaluator()
	ev.Logger = log

	updates := make(chan episodeUpdate, 64)
	var writeReqs chan []store.StepRow
	writerDone := make(chan []string, 1)
	if cfg.Output.Record {
		writeReqs = make(chan []store.StepRow, 16)
		go func() {
			writerDone <- store.FlushLoop(cfg.Output.Dir, o.flushEvery, writeReqs, log)
		}()
	} else {
		writerDone <- nil
	}

	ev.Observe = func(candidateID string, episode int, seed int64) func(harness.StepInfo) {
		var rec *store.Recorder
		if writeReqs != nil {
			rec = store.NewRecorder(candidateID, "evaluate", seed)
		}
		return func(si harness.StepInfo) {
			totalSteps.Add(1)
			if rec != nil {
				rec.OnStep(si)
			}
			if !si.Terminal {
				return
			}
			if rec != nil {
				writeReqs <- rec.Rows()
			}
			// Never let a slow dashboard stall the workers.
			select {
			case updates <- episodeUpdate{
				Candidate: candidateID,
				Episode:   episode,
				Seed:      seed,
				Steps:     si.Step,
				Score:     si.State.Score,
				Fitness:   si.Fitness,
			}:
			default:
			}
		}
	}

	log.Info("evaluating",
		"policies", len(candidates),
		"episodes", cfg.Evaluation.Episodes,
		"size", cfg.Env.Size,
		"seed", cfg.Evaluation.Seed,
		"record", cfg.Output.Record,
	)

	var scores []harness.Score
	if o.tui {
		scores, err = runWithTUI(ctx, ev, candidates, updates)
	} else {
		go drainUpdates(updates, log)
		scores, err = ev.EvaluatePopulation(ctx, candidates)
	}

	if writeReqs != nil {
		close(writeReqs)
	}
	written := <-writerDone
	if err != nil {
		return err
	}

	printScores(os.Stdout, scores)
	if len(written) > 0 {
		log.Info("recorded episodes", "dir", cfg.Output.Dir, "batches", len(written))
	}
	return nil
}

func drainUpdates(updates <-chan episodeUpdate, log *slog.Logger) {
	for u := range updates {
		log.Debug("episode done", "candidate", u.Candidate, "episode", u.Episode, "fitness", u.Fitness, "score", u.Score)
	}
}

func printScores(w io.Writer, scores []harness.Score) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POLICY\tMEAN FITNESS\tBEST\tBEST SCORE\tEPISODES")
	for _, s := range scores {
		best := s.Best()
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%d\t%d\n", s.CandidateID, s.Fitness, best.Fitness, best.Score, len(s.Results))
	}
	_ = tw.Flush()
}

// policyRefs splits the -policy list, dropping empty entries.
func policyRefs(list string) []string {
	var refs []string
	for _, ref := range strings.Split(list, ",") {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// candidateID keeps repeated refs apart in the summary and the recorded rows.
func candidateID(i int, ref string) string {
	return fmt.Sprintf("%s#%d", ref, i)
}

func runWithTUI(ctx context.Context, ev *harness.Evaluator, candidates []harness.Candidate, updates chan episodeUpdate) ([]harness.Score, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := len(candidates) * max(ev.Episodes, 1)
	p := tea.NewProgram(initialModel(updates, total), tea.WithAltScreen())

	type outcome struct {
		scores []harness.Score
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		scores, err := ev.EvaluatePopulation(ctx, candidates)
		done <- outcome{scores, err}
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, err
	}
	// Quitting early cancels whatever is still running.
	cancel()
	res := <-done
	return res.scores, res.err
}
