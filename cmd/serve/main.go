// Command serve exposes a policy over HTTP so an external loop can query it
// one position at a time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/neatsnake/config"
	"github.com/brensch/neatsnake/policy"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults are embedded)")
	listen := flag.String("listen", ":8081", "HTTP listen address")
	ref := flag.String("policy", "greedy", "Policy: greedy, network:<file> or onnx:<file>")
	actTimeout := flag.Duration("act-timeout", 500*time.Millisecond, "Per request policy timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "serve:", err)
		os.Exit(1)
	}
	log, err := cfg.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "serve:", err)
		os.Exit(1)
	}

	p, closer, err := policy.Load(*ref, cfg.OnnxConfig(), cfg.Onnx.Sessions)
	if err != nil {
		log.Error("loading policy", "policy", *ref, "err", err)
		os.Exit(1)
	}
	defer closer.Close()

	server := NewServer(*ref, p, cfg.Rules(), cfg.HarnessScoring(), *actTimeout, log)
	srv := &http.Server{
		Addr:              *listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("policy server listening", "addr", *listen, "policy", *ref)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}
