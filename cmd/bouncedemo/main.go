// Command bouncedemo animates a bouncing ball with host timers, while a task
// on a bridged scheduler loop counts the bounces.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
