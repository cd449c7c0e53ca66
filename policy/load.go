package policy

import (
	"fmt"
	"io"
	"strings"

	"github.com/brensch/neatsnake/harness"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Load resolves a policy reference:
//
//	greedy            the built-in baseline
//	network:<file>    a genome saved by SaveFile
//	onnx:<file>       an exported model, served by `sessions` batching sessions
//
// The closer must be called when the policy is no longer needed.
func Load(ref string, onnx OnnxConfig, sessions int) (harness.Policy, io.Closer, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(ref), ":")
	switch kind {
	case "greedy":
		return Greedy{}, nopCloser{}, nil
	case "network":
		if arg == "" {
			return nil, nil, fmt.Errorf("policy %q: missing file", ref)
		}
		n, _, err := LoadNetwork(arg)
		if err != nil {
			return nil, nil, err
		}
		return n, nopCloser{}, nil
	case "onnx":
		if arg == "" {
			return nil, nil, fmt.Errorf("policy %q: missing file", ref)
		}
		pool, err := NewOnnxPool(arg, sessions, onnx)
		if err != nil {
			return nil, nil, err
		}
		return pool, pool, nil
	default:
		return nil, nil, fmt.Errorf("unknown policy %q (want greedy, network:<file> or onnx:<file>)", ref)
	}
}
