// Package selector implements a readiness multiplexer (epoll on Linux, kqueue
// on Darwin) that can refuse to block.
//
// A [Selector] normally behaves like any other poller: [Selector.Select]
// waits until a registered file descriptor is ready, or the timeout elapses.
// Once a [Notifier] is installed however, a select that would block instead
// hands the wait to a single background goroutine, and returns [ErrYield]
// immediately. When the background wait completes, the selector goes back to
// [StateIdle], stores the result for the next call to Select, and calls
// Notify on whichever notifier is installed at that moment.
//
// This allows a single-threaded scheduler to be driven by some other event
// loop, without ever blocking that loop.
package selector
