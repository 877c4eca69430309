package ingest

import (
	"math"
	"strconv"
)

// normalizeValue collapses computed cell values into plain scalars:
// single-element slices unwrap recursively to their payload, floats
// that are mathematically integers collapse to int64, and numeric
// strings parse to their typed value. The function is idempotent;
// re-applying it to an already-normalized value is a no-op.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []any:
		if len(x) == 1 {
			return normalizeValue(x[0])
		}
		out := make([]any, len(x))
		for i := range x {
			out[i] = normalizeValue(x[i])
		}
		return out
	case float64:
		return collapseFloat(x)
	case float32:
		return collapseFloat(float64(x))
	case string:
		return parseScalar(x)
	default:
		return v
	}
}

// collapseFloat turns a float that is mathematically an integer into an
// int64, leaving fractional, infinite and NaN values alone.
func collapseFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
		return int64(f)
	}
	return f
}

// parseScalar interprets a cell's string form as int64, float64 or the
// original string, in that order.
func parseScalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return collapseFloat(f)
	}
	return s
}
