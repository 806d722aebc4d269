/*
Package runner sequences collection items through preparation and transport
and reports the lifecycle to handlers.

# Lifecycle

	Idle -> Running -> (Preparing -> Dispatching -> Settling)* -> Completed

OnStart fires once before any item is touched, OnItem once per item in input
order, OnDone once after the last item. Per-item failures (preparation or
transport) are reported through OnItem only; OnDone carries an error only
for run-level faults: an invalid configuration, a panic while handling an
item, or cancellation.

# Cancellation

Stop and context cancellation are checked between items. An in-flight
transport call is never interrupted by either; transport timeouts are the
transport's concern.
*/
package runner
