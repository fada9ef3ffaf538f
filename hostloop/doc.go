// Package hostloop is a small GUI-toolkit style event loop: a process-wide
// [Application], nestable [EventLoop] executions that dispatch posted
// events on the calling goroutine, single-shot timers, and [Object] and
// [Signal] types with connection lifetimes tied to their endpoints.
//
// It is the foreign loop that the bridge package integrates with, and
// deliberately mirrors the semantics of such toolkits: posted events are
// always dispatched later, from inside Exec, never from the call that
// posted them, and panics from event handlers propagate out of Exec.
package hostloop
