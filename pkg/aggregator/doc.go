/*
Package aggregator is the in-process state machine at the heart of the
taskpulse instrumentation console. It consumes a stream of task/resource
lifecycle events emitted by an instrumented async runtime and maintains a
queryable, incrementally-updateable snapshot of that runtime's state:
tasks, their poll/waker statistics, resources, resource operations, and
async operations.

# Architecture

The aggregator is a single cooperatively-scheduled loop. All mutation of
its entity tables happens on that one goroutine; producers and subscribers
only ever touch it through channels and non-blocking sends.

	┌────────────────────── AGGREGATOR ───────────────────────┐
	│                                                           │
	│  events chan ──► drain (non-blocking) ──► reducer         │
	│                                              │             │
	│  rpcs chan ──► subscribe (instrument/detail)  ▼             │
	│                                           entity tables    │
	│                                        (tasks, resources,  │
	│                                         async ops, ops)    │
	│                                              │             │
	│  publish tick ──────────────────────────────►│             │
	│                                              ▼             │
	│                                   watchers (non-blocking,  │
	│                                    drop-on-full sends)     │
	│                                              │             │
	│                                              ▼             │
	│                                      retention pass        │
	└───────────────────────────────────────────────────────────┘

# Core components

  - Table: a keyed collection with per-row dirty tracking, used for
    tasks, task stats, resources, resource stats, async ops, async op
    stats, and resource ops.
  - Histogram: an HDR latency histogram per task, two significant figures.
  - Watcher: a subscriber's outbound queue with a non-blocking send.
  - FlushSignal: a coalesced producer-to-aggregator "drain soon" nudge.
  - subscriptionManager: tracks live instrument/task-detail watchers.
  - retentionSweep: reclaims closed entities once their final update has been
    delivered, or unconditionally after the retention window elapses.

The aggregator never blocks on a subscriber: a slow or gone client is
dropped, never backpressures the instrumented program.
*/
package aggregator
