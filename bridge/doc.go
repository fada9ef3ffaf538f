// Package bridge runs a [scheduler.Loop] inside a foreign event loop.
//
// A [Loop] never blocks the goroutine it runs on. Each iteration of the
// scheduler (a tick) is dispatched by the host, as a queued event posted by
// a [Notifier]. When a tick would otherwise wait for I/O or a timer, the
// loop's [selector.Selector] moves the wait to a background goroutine and
// the tick returns. The background wait notifies once it completes, which
// posts the next tick.
//
// There are two ways to run a loop:
//
//   - Nested: [Loop.RunForever] (and [Loop.RunUntilComplete]) start a new
//     host event loop, and return once the scheduler is stopped.
//   - Attached: [Loop.Enter] starts ticking inside whichever host event loop
//     is already running, until [Loop.Exit]. Stop requests are ignored in
//     this mode, as the loop does not own the host's exit path.
//
// [Loop.RunTask] creates a task and runs its first step before returning,
// which is what host callbacks expect. [AsyncSlot] adapts a coroutine into
// such a callback.
package bridge
