/*
Package log wraps zerolog with the conventions taskpulse's components
share: a process-wide Logger configured once via Init, component-scoped
children via WithComponent, and a handful of entity-scoped helpers for
attaching a correlation id without repeating Str(...) calls at every
call site.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("aggregator")
	logger.Info().Msg("starting")

	taskLog := log.WithTaskID(42)
	taskLog.Debug().Msg("spawned")

# Entity helpers

WithTaskID, WithResourceID, WithAsyncOpID and WithWatcherID each return a
child Logger carrying one correlation field (task_id, resource_id,
async_op_id, watcher_id respectively). They exist because the aggregator,
subscription manager and retention sweep all log about specific rows and
watchers; a plain component logger would otherwise require callers to
repeat the same Str(...) call everywhere.

# See also

  - pkg/aggregator, which is the package's main consumer.
*/
package log
