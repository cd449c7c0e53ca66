package policy

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/rules"
)

func TestFeaturesToFloat32(t *testing.T) {
	var f rules.Features
	f[rules.FeatTailLeft] = 0.25
	f[rules.FeatDirUp] = 1
	buf := FeaturesToFloat32(f)
	defer PutFloatBuffer(buf)
	data := *buf
	if len(data) != rules.NumFeatures {
		t.Fatalf("len=%d", len(data))
	}
	if data[rules.FeatTailLeft] != 0.25 || data[rules.FeatDirUp] != 1 || data[0] != 0 {
		t.Fatalf("data=%v", data)
	}
}

// TestOnnxPolicy needs a model exported with an "input" [N,11] tensor and a
// "policy" [N,3] output, plus the onnxruntime shared library.
func TestOnnxPolicy(t *testing.T) {
	model := os.Getenv("NEATSNAKE_TEST_ONNX_MODEL")
	if model == "" {
		t.Skip("NEATSNAKE_TEST_ONNX_MODEL not set; skipping")
	}
	pool, err := NewOnnxPool(model, 2, DefaultOnnxConfig())
	if err != nil {
		t.Skipf("onnx runtime unavailable: %v", err)
	}
	defer pool.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := pool.Act(context.Background(), rules.Features{})
			if err == nil && !a.Valid() {
				err = game.ErrInvalidAction
			}
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("act: %v", err)
	}
	if st := pool.Stats(); st.TotalItems != 32 {
		t.Fatalf("stats=%+v want 32 items", st)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := pool.Act(context.Background(), rules.Features{}); err != ErrClosed {
		t.Fatalf("act after close err=%v want ErrClosed", err)
	}
}
