/*
Package events provides a synthetic workload generator for local demos
and the `taskpulsed run --simulate` flag.

Recorder fabricates a plausible stream of aggregator.Event values — task
spawns, polls, waker churn, a shared semaphore resource with attribute
updates — and writes them to the channel an aggregator.Aggregator reads
from. It stands in for the real instrumented program a production
deployment would attach to; nothing in this package is meant to run
against live traffic.

# Usage

	ch := make(chan aggregator.Event, 1024)
	rec := events.NewRecorder(ch, time.Now().UnixNano())
	go rec.Run(ctx, 5*time.Millisecond)

	agg := aggregator.New(ch, rpcs, aggregator.DefaultConfig())
	agg.Run(ctx)

# See also

  - pkg/aggregator for the consumer this package feeds.
*/
package events
