package metrics

import (
	"sync"
	"sync/atomic"
)

// Collector keeps a rolling in-memory view of engine activity. Writes are
// fire-and-forget from the engine's perspective and must stay cheap: plain
// atomics plus one mutex-guarded map for per-action failure counts.
//
// Collectors are constructed and injected, never package globals, so tests
// get isolated instances.
type Collector struct {
	runsStarted      uint64
	runsSucceeded    uint64
	runsFailed       uint64
	runsSkipped      uint64
	actionsStarted   uint64
	actionsSucceeded uint64
	actionsFailed    uint64
	actionsSkipped   uint64
	runDurationMs    uint64

	mu               sync.Mutex
	failuresByAction map[string]uint64
}

func NewCollector() *Collector {
	return &Collector{failuresByAction: make(map[string]uint64)}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	RunsStarted      uint64            `json:"runs_started"`
	RunsSucceeded    uint64            `json:"runs_succeeded"`
	RunsFailed       uint64            `json:"runs_failed"`
	RunsSkipped      uint64            `json:"runs_skipped"`
	ActionsStarted   uint64            `json:"actions_started"`
	ActionsSucceeded uint64            `json:"actions_succeeded"`
	ActionsFailed    uint64            `json:"actions_failed"`
	ActionsSkipped   uint64            `json:"actions_skipped"`
	RunDurationMs    uint64            `json:"run_duration_ms"`
	FailuresByAction map[string]uint64 `json:"failures_by_action"`
}

func (c *Collector) RunStarted()   { atomic.AddUint64(&c.runsStarted, 1) }
func (c *Collector) RunSucceeded() { atomic.AddUint64(&c.runsSucceeded, 1) }
func (c *Collector) RunFailed()    { atomic.AddUint64(&c.runsFailed, 1) }
func (c *Collector) RunSkipped()   { atomic.AddUint64(&c.runsSkipped, 1) }

func (c *Collector) ActionStarted()   { atomic.AddUint64(&c.actionsStarted, 1) }
func (c *Collector) ActionSucceeded() { atomic.AddUint64(&c.actionsSucceeded, 1) }
func (c *Collector) ActionSkipped()   { atomic.AddUint64(&c.actionsSkipped, 1) }

// ActionFailed counts a failure for the given action key.
func (c *Collector) ActionFailed(actionKey string) {
	atomic.AddUint64(&c.actionsFailed, 1)
	if actionKey == "" {
		return
	}
	c.mu.Lock()
	c.failuresByAction[actionKey]++
	c.mu.Unlock()
}

// AddRunDuration accumulates total run processing time in milliseconds.
func (c *Collector) AddRunDuration(ms int64) {
	if ms < 0 {
		return
	}
	atomic.AddUint64(&c.runDurationMs, uint64(ms))
}

// Snapshot returns a consistent-enough copy for exposition. Individual
// counters are read atomically; the map is copied under the lock.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		RunsStarted:      atomic.LoadUint64(&c.runsStarted),
		RunsSucceeded:    atomic.LoadUint64(&c.runsSucceeded),
		RunsFailed:       atomic.LoadUint64(&c.runsFailed),
		RunsSkipped:      atomic.LoadUint64(&c.runsSkipped),
		ActionsStarted:   atomic.LoadUint64(&c.actionsStarted),
		ActionsSucceeded: atomic.LoadUint64(&c.actionsSucceeded),
		ActionsFailed:    atomic.LoadUint64(&c.actionsFailed),
		ActionsSkipped:   atomic.LoadUint64(&c.actionsSkipped),
		RunDurationMs:    atomic.LoadUint64(&c.runDurationMs),
		FailuresByAction: make(map[string]uint64),
	}
	c.mu.Lock()
	for k, v := range c.failuresByAction {
		snap.FailuresByAction[k] = v
	}
	c.mu.Unlock()
	return snap
}
