package opt

import (
	"math"
	"runtime/debug"
	rtmetrics "runtime/metrics"
)

const heapObjects = "/memory/classes/heap/objects:bytes"

// heapPressure reports whether live heap objects use more than frac of the
// Go soft memory limit. Without a limit there is never pressure.
func heapPressure(frac float64) bool {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return false
	}
	sample := []rtmetrics.Sample{{Name: heapObjects}}
	rtmetrics.Read(sample)
	if sample[0].Value.Kind() != rtmetrics.KindUint64 {
		return false
	}
	return float64(sample[0].Value.Uint64()) > frac*float64(limit)
}
