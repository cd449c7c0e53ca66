package main

import (
	"context"
	"testing"
	"time"

	"github.com/brensch/neatsnake/config"
	"github.com/brensch/neatsnake/logging"
	"github.com/brensch/neatsnake/policy"
	"github.com/brensch/neatsnake/viewer"
)

func TestStreamDemo_StopsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Env.Size = 6
	hub := viewer.NewHub(logging.Discard())
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		streamDemo(ctx, cfg, "greedy", policy.Greedy{}, hub, time.Millisecond, logging.Discard())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("demo loop did not stop")
	}
}
