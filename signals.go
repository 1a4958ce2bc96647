package pipe

import "github.com/zoobzio/capitan"

// Signal constants for dispatcher lifecycle events.
// Signals follow the pattern: <component>.<event>.
const (
	SignalItemYielded       capitan.Signal = "dispatcher.item.yielded"
	SignalItemDropped       capitan.Signal = "dispatcher.item.dropped"
	SignalSourceExpanded    capitan.Signal = "dispatcher.source.expanded"
	SignalFutureScheduled   capitan.Signal = "dispatcher.future.scheduled"
	SignalFutureFailed      capitan.Signal = "dispatcher.future.failed"
	SignalFuturePoolWait    capitan.Signal = "dispatcher.future.pool-wait"
	SignalDispatcherClosed  capitan.Signal = "dispatcher.closed"
	SignalDispatcherOpened  capitan.Signal = "dispatcher.opened"
)

// Common field keys using capitan primitive types, matching the reference
// library's convention of keeping every field primitive so no custom
// serialization is required.
var (
	FieldPipeName  = capitan.NewStringKey("pipe_name")
	FieldStepIndex = capitan.NewIntKey("step_index")
	FieldError     = capitan.NewStringKey("error")
	FieldTimestamp = capitan.NewFloat64Key("timestamp")

	FieldSourceDepth  = capitan.NewIntKey("source_depth")
	FieldFutureCount  = capitan.NewIntKey("future_count")
	FieldMaxParallel  = capitan.NewIntKey("max_parallel_items")
	FieldPollInterval = capitan.NewFloat64Key("futures_poll_interval")
)
