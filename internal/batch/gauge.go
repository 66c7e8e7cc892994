package batch

import "runtime"

// defaultGauge estimates readily available memory as the heap space the
// runtime holds for reuse. It shrinks under allocation pressure, which is
// the signal the chunk-size halving keys off. Tests substitute their own
// gauge.
func defaultGauge() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapIdle < ms.HeapReleased {
		return 0
	}
	return ms.HeapIdle - ms.HeapReleased
}
