// Package scheduler implements a single-threaded cooperative scheduler, in
// the style of an asyncio event loop: a FIFO queue of ready callbacks, a
// heap of timers, I/O readiness callbacks, futures, and tasks.
//
// Tasks run a [Coroutine], which is a plain function that suspends by
// calling [TaskContext.Await]. Each step of a task runs as a callback on the
// loop, so at most one task is current at any time.
//
// A loop iteration ([Loop.RunOnce]) is exposed so that the loop may be
// driven by something other than [Loop.RunForever], and [Hooks] allow a
// wrapper to intercept scheduling calls.
package scheduler
