package policy

import (
	"sync"

	"github.com/brensch/neatsnake/rules"
)

var floatPool = sync.Pool{
	New: func() interface{} {
		b := make([]float32, rules.NumFeatures)
		return &b
	},
}

// FeaturesToFloat32 copies f into a pooled float32 buffer for model input.
// Return it with PutFloatBuffer.
func FeaturesToFloat32(f rules.Features) *[]float32 {
	ptr := floatPool.Get().(*[]float32)
	data := *ptr
	for i, v := range f {
		data[i] = float32(v)
	}
	return ptr
}

func PutFloatBuffer(b *[]float32) {
	floatPool.Put(b)
}
