package evolve

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeGenome packs weights as little-endian float64s for the ledger.
func EncodeGenome(genome []float64) []byte {
	out := make([]byte, 8*len(genome))
	for i, w := range genome {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(w))
	}
	return out
}

// DecodeGenome reverses EncodeGenome.
func DecodeGenome(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("genome blob has %d bytes, not a multiple of 8", len(data))
	}
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return out, nil
}
