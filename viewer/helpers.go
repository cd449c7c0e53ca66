package viewer

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

func withCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func zipPoints(xs, ys []int32) []Point {
	n := min(len(xs), len(ys))
	out := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Point{X: xs[i], Y: ys[i]})
	}
	return out
}

// DuckDB hands LIST columns back as []any; these helpers flatten them.

func asInt32Slice(v any) []int32 {
	switch vv := v.(type) {
	case nil:
		return nil
	case []int32:
		return vv
	case []any:
		out := make([]int32, 0, len(vv))
		for _, x := range vv {
			out = append(out, int32(asInt64(x)))
		}
		return out
	default:
		return nil
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asFloat32Slice(v any) []float32 {
	switch vv := v.(type) {
	case nil:
		return nil
	case []float32:
		return vv
	case []any:
		out := make([]float32, 0, len(vv))
		for _, x := range vv {
			switch f := x.(type) {
			case float32:
				out = append(out, f)
			case float64:
				out = append(out, float32(f))
			default:
				out = append(out, 0)
			}
		}
		return out
	default:
		return nil
	}
}
