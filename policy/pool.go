package policy

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/rules"
)

// OnnxPool spreads Act calls round-robin over several sessions so more
// than one batch can be in flight.
type OnnxPool struct {
	policies []*OnnxPolicy
	rr       atomic.Uint64
}

func NewOnnxPool(modelPath string, sessions int, cfg OnnxConfig) (*OnnxPool, error) {
	if sessions <= 0 {
		sessions = 1
	}
	policies := make([]*OnnxPolicy, 0, sessions)
	for i := 0; i < sessions; i++ {
		p, err := NewOnnxPolicy(modelPath, cfg)
		if err != nil {
			for _, created := range policies {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx session %d/%d: %w", i+1, sessions, err)
		}
		policies = append(policies, p)
	}
	return &OnnxPool{policies: policies}, nil
}

func (p *OnnxPool) Act(ctx context.Context, f rules.Features) (game.Action, error) {
	if len(p.policies) == 0 {
		return 0, fmt.Errorf("onnx pool has no sessions")
	}
	idx := int(p.rr.Add(1)-1) % len(p.policies)
	return p.policies[idx].Act(ctx, f)
}

func (p *OnnxPool) Stats() RuntimeStats {
	var out RuntimeStats
	for _, c := range p.policies {
		st := c.Stats()
		out.TotalBatches += st.TotalBatches
		out.TotalItems += st.TotalItems
		out.TotalRunNanos += st.TotalRunNanos
		out.QueueLen += st.QueueLen
		if st.LastBatchSize > out.LastBatchSize {
			out.LastBatchSize = st.LastBatchSize
		}
	}
	return out
}

func (p *OnnxPool) Close() error {
	var firstErr error
	for _, c := range p.policies {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
