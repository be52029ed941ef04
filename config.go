package rudo

import "go.uber.org/atomic"

// Config holds the process-wide configuration surface: heap-pressure
// thresholds and the logging level. Field names use mapstructure tags so
// cmd/rudodemo can bind them straight out of a viper.Viper without a
// translation layer.
type Config struct {
	YoungCollectThreshold uint64 `mapstructure:"young_collect_threshold_bytes"`
	MajorHeapThreshold    uint64 `mapstructure:"major_heap_threshold_bytes"`
	LogLevel              string `mapstructure:"log_level"`
}

// DefaultConfig returns the built-in thresholds used when no Config is
// supplied: the constants defaultCollectCondition itself applies.
func DefaultConfig() Config {
	return Config{
		YoungCollectThreshold: youngCollectThreshold,
		MajorHeapThreshold:    majorHeapThreshold,
		LogLevel:              "info",
	}
}

// SetConfig replaces the process-wide collect thresholds that
// defaultCollectCondition and maybeCollect consult. A zero field in cfg
// falls back to that threshold's built-in default rather than disabling
// the check; LogLevel is not handled here (see SetLogger).
func SetConfig(cfg Config) {
	young := cfg.YoungCollectThreshold
	if young == 0 {
		young = youngCollectThreshold
	}
	major := cfg.MajorHeapThreshold
	if major == 0 {
		major = majorHeapThreshold
	}
	currentYoungCollectThreshold.Store(young)
	currentMajorHeapThreshold.Store(major)
}

// CollectInfo is the snapshot handed to a collect-condition predicate, a
// pluggable heap-pressure policy input. Every field except YoungBytes is
// process-wide; YoungBytes is the requesting worker's own figure. The
// predicate decides whether allocation pressure warrants a pause of every
// worker.
type CollectInfo struct {
	// ObjectsDropped counts Gc.Drop calls since the last collection
	// completed (any generation, any worker).
	ObjectsDropped uint64
	// ObjectsAlive counts boxes currently allocated (strong side), a
	// rough proxy for live-set size.
	ObjectsAlive uint64
	// YoungBytes is the requesting worker's own young-generation
	// allocation total, the per-worker half of the minor-GC trigger.
	YoungBytes uint64
	// TotalHeapBytes sums young+old bytes across every registered
	// worker, used to decide minor vs. major.
	TotalHeapBytes uint64
}

// youngCollectThreshold and majorHeapThreshold are the two concrete
// defaults: trigger a minor collection once a worker's young generation
// passes 1 MB, and prefer a major collection once total heap size passes
// 10 MB.
const (
	youngCollectThreshold = 1 << 20
	majorHeapThreshold    = 10 << 20
)

// currentYoungCollectThreshold and currentMajorHeapThreshold are the
// live, runtime-tunable thresholds: they start at the package constants
// above and are only ever changed by SetConfig, so a process that never
// calls SetConfig behaves exactly as if these were the constants.
var (
	currentYoungCollectThreshold = atomic.NewUint64(youngCollectThreshold)
	currentMajorHeapThreshold    = atomic.NewUint64(majorHeapThreshold)
)

// defaultCollectCondition is the default heuristic: collect when more
// objects have been dropped since the last GC than are currently alive,
// or when a worker's young generation has grown past the threshold.
// Either condition alone is sufficient.
func defaultCollectCondition(info *CollectInfo) bool {
	if info.ObjectsDropped > info.ObjectsAlive {
		return true
	}
	return info.YoungBytes > currentYoungCollectThreshold.Load()
}

// SetCollectCondition replaces w's collection-condition predicate. The
// policy is per-worker state, so each worker can be tuned independently.
func SetCollectCondition(w *Worker, fn func(*CollectInfo) bool) {
	if fn == nil {
		fn = defaultCollectCondition
	}
	w.collectCond = fn
}

// Process-wide object-liveness counters backing CollectInfo. Incremented
// at allocation and Drop; reconciled at sweep (ObjectsAlive decremented
// when sweep phase 1 finalizes a box, even if a Weak keeps its slot
// allocated for longer; ObjectsDropped reset once a collection
// has run, since the predicate only cares about drops *since the last
// GC*).
var (
	globalObjectsAlive    atomic.Int64
	globalObjectsDropped  atomic.Int64
)

func noteObjectAllocated() { globalObjectsAlive.Inc() }
func noteObjectDropped()   { globalObjectsDropped.Inc() }
func noteObjectReclaimed() { globalObjectsAlive.Dec() }

func resetDropCounter() { globalObjectsDropped.Store(0) }

// totalHeapBytes sums young+old bytes across every registered worker, the
// input to the minor-vs-major decision in maybeCollect.
func totalHeapBytes() uint64 {
	var total uint64
	for _, w := range allWorkersSnapshot() {
		total += w.heap.currentLiveBytes()
	}
	return total
}

// maybeCollect is the safepoint-adjacent trigger: build a CollectInfo
// snapshot, consult w's predicate, and if it fires, run a collection
// (minor, or major once total heap passes majorHeapThreshold).
func (w *Worker) maybeCollect() {
	w.checkSafepoint()
	if w.inCollect {
		return
	}

	info := &CollectInfo{
		ObjectsDropped: uint64(globalObjectsDropped.Load()),
		ObjectsAlive:   uint64(globalObjectsAlive.Load()),
		YoungBytes:     w.heap.youngBytes.Load(),
		TotalHeapBytes: totalHeapBytes(),
	}

	cond := w.collectCond
	if cond == nil {
		cond = defaultCollectCondition
	}
	if !cond(info) {
		return
	}

	full := info.TotalHeapBytes > currentMajorHeapThreshold.Load()
	w.Collect(full)
}
