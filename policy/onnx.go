package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/rules"
)

// Tensor names the exported model must use. Input is [batch, 11], output
// is [batch, 3] raw scores, one per relative action.
const (
	OnnxInputName  = "input"
	OnnxOutputName = "policy"
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
)

var ErrClosed = errors.New("onnx policy is closed")

type OnnxConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	// UseCUDA appends the CUDA execution provider when it is available.
	UseCUDA bool
}

func DefaultOnnxConfig() OnnxConfig {
	return OnnxConfig{BatchSize: DefaultBatchSize, BatchTimeout: DefaultBatchTimeout}
}

type inferenceRequest struct {
	input    *[]float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	scores [game.NumActions]float32
	err    error
}

// RuntimeStats describes batching behaviour.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
}

func (s RuntimeStats) AvgBatchSize() float64 {
	if s.TotalBatches == 0 {
		return 0
	}
	return float64(s.TotalItems) / float64(s.TotalBatches)
}

// OnnxPolicy batches Act calls from many goroutines into single session
// runs. It is safe for concurrent use.
type OnnxPolicy struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan inferenceRequest
	cfg          OnnxConfig

	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	totalBatches  atomic.Int64
	totalItems    atomic.Int64
	totalRunNanos atomic.Int64
	lastBatchSize atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

// initRuntime points onnxruntime_go at the shared library and initialises
// the process-wide environment once.
func initRuntime() error {
	if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	} else if runtime.GOOS == "linux" {
		cwd, _ := os.Getwd()
		for _, name := range []string{"libonnxruntime.so", "libonnxruntime.so.1"} {
			abs := filepath.Join(cwd, name)
			if _, err := os.Stat(abs); err == nil {
				ort.SetSharedLibraryPath(abs)
				break
			}
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return fmt.Errorf("failed to init ort: %w", ortInitErr)
	}
	return nil
}

func NewOnnxPolicy(modelPath string, cfg OnnxConfig) (*OnnxPolicy, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if err := initRuntime(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Many workers share the host; keep each session single threaded.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if cfg.UseCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			err = options.AppendExecutionProviderCUDA(cudaOptions)
		}
		if err != nil {
			return nil, fmt.Errorf("enable cuda: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{OnnxInputName}, []string{OnnxOutputName}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	p := &OnnxPolicy{
		session:      session,
		cfg:          cfg,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
	go p.batchLoop()
	return p, nil
}

// Close stops the batch loop and destroys the session. Pending and later
// Act calls fail with ErrClosed.
func (p *OnnxPolicy) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		<-p.loopDone
		err = p.session.Destroy()
	})
	return err
}

func (p *OnnxPolicy) Stats() RuntimeStats {
	return RuntimeStats{
		TotalBatches:  p.totalBatches.Load(),
		TotalItems:    p.totalItems.Load(),
		TotalRunNanos: p.totalRunNanos.Load(),
		LastBatchSize: p.lastBatchSize.Load(),
		QueueLen:      len(p.requestsChan),
	}
}

// Scores runs the model on one encoded state.
func (p *OnnxPolicy) Scores(ctx context.Context, f rules.Features) ([game.NumActions]float32, error) {
	buf := FeaturesToFloat32(f)
	defer PutFloatBuffer(buf)

	respChan := make(chan inferenceResponse, 1)
	select {
	case p.requestsChan <- inferenceRequest{input: buf, respChan: respChan}:
	case <-p.done:
		return [game.NumActions]float32{}, ErrClosed
	case <-ctx.Done():
		return [game.NumActions]float32{}, ctx.Err()
	}

	// The loop owns buf until it answers, so wait for the answer even if
	// ctx is cancelled meanwhile.
	select {
	case resp := <-respChan:
		return resp.scores, resp.err
	case <-p.loopDone:
		return [game.NumActions]float32{}, ErrClosed
	}
}

func (p *OnnxPolicy) Act(ctx context.Context, f rules.Features) (game.Action, error) {
	scores, err := p.Scores(ctx, f)
	if err != nil {
		return 0, err
	}
	return harness.Argmax(scores[:]), nil
}

func (p *OnnxPolicy) batchLoop() {
	defer close(p.loopDone)

	batchInput := make([]float32, 0, p.cfg.BatchSize*rules.NumFeatures)
	requests := make([]inferenceRequest, 0, p.cfg.BatchSize)

	ticker := time.NewTicker(p.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(requests) == 0 {
			return
		}
		p.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case req := <-p.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, (*req.input)...)
			if len(requests) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.done:
			flush()
			for {
				select {
				case req := <-p.requestsChan:
					req.respChan <- inferenceResponse{err: ErrClosed}
				default:
					return
				}
			}
		}
	}
}

func (p *OnnxPolicy) runBatch(requests []inferenceRequest, batchInput []float32) {
	n := int64(len(requests))
	start := time.Now()

	inputTensor, err := ort.NewTensor(ort.NewShape(n, rules.NumFeatures), batchInput)
	if err != nil {
		p.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, game.NumActions))
	if err != nil {
		p.failBatch(requests, err)
		return
	}
	defer outputTensor.Destroy()

	if err := p.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		p.failBatch(requests, err)
		return
	}

	out := outputTensor.GetData()
	for i, req := range requests {
		var resp inferenceResponse
		copy(resp.scores[:], out[i*game.NumActions:(i+1)*game.NumActions])
		req.respChan <- resp
	}

	p.totalBatches.Add(1)
	p.totalItems.Add(n)
	p.totalRunNanos.Add(time.Since(start).Nanoseconds())
	p.lastBatchSize.Store(n)
}

func (p *OnnxPolicy) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}
