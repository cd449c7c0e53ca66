// Command viewer serves recorded episodes and, with -demo, streams a policy
// playing live to /live.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/neatsnake/config"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/policy"
	"github.com/brensch/neatsnake/rules"
	"github.com/brensch/neatsnake/viewer"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults are embedded)")
	addr := flag.String("addr", "", "Listen address (overrides viewer.addr)")
	dataDirs := flag.String("data-dir", "", "Comma separated Parquet directories (overrides viewer.data_dir)")
	demo := flag.String("demo", "", "Policy to stream live, e.g. greedy or network:data/best.json")
	demoDelay := flag.Duration("demo-delay", 60*time.Millisecond, "Delay between live frames")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "viewer:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Viewer.Addr = *addr
	}
	if *dataDirs != "" {
		cfg.Viewer.DataDir = *dataDirs
	}
	log, err := cfg.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "viewer:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *demo, *demoDelay, log); err != nil {
		log.Error("viewer failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, demo string, delay time.Duration, log *slog.Logger) error {
	var roots []string
	for _, r := range strings.Split(cfg.Viewer.DataDir, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, r)
		}
	}

	hub := viewer.NewHub(log)
	defer hub.Close()
	srv := viewer.NewServer(roots, hub, log)
	defer srv.Close()

	if demo != "" {
		p, closer, err := policy.Load(demo, cfg.OnnxConfig(), cfg.Onnx.Sessions)
		if err != nil {
			return err
		}
		defer closer.Close()
		go streamDemo(ctx, cfg, demo, p, hub, delay, log)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Viewer.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("viewer listening", "addr", cfg.Viewer.Addr, "roots", roots)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}

// streamDemo plays episodes back to back, publishing every step.
func streamDemo(ctx context.Context, cfg *config.Config, ref string, p harness.Policy, hub *viewer.Hub, delay time.Duration, log *slog.Logger) {
	seed := cfg.Evaluation.Seed
	for ctx.Err() == nil {
		env, err := rules.NewEnvironment(cfg.Rules(), rand.New(rand.NewSource(seed)))
		if err != nil {
			log.Error("demo env", "err", err)
			return
		}
		publish := hub.Observer(uuid.NewString(), ref)
		opts := harness.Options{
			Scoring: cfg.HarnessScoring(),
			OnStep: func(si harness.StepInfo) {
				publish(si)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
			},
		}
		res, err := harness.Evaluate(ctx, env, p, opts)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("demo episode", "seed", seed, "err", err)
			}
			return
		}
		log.Info("demo episode", "seed", seed, "steps", res.Steps, "score", res.Score, "fitness", res.Fitness, "reason", res.Reason)
		seed++
	}
}
