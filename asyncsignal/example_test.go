//go:build linux || darwin

package asyncsignal_test

import (
	"fmt"

	"github.com/joeycumines/go-asyncslot/asyncsignal"
	"github.com/joeycumines/go-asyncslot/bridge"
	"github.com/joeycumines/go-asyncslot/hostloop"
	"github.com/joeycumines/go-asyncslot/scheduler"
)

func ExampleAwait() {
	app, err := hostloop.NewApplication()
	if err != nil {
		panic(err)
	}
	defer app.Close()

	loop, err := bridge.New()
	if err != nil {
		panic(err)
	}
	defer loop.Close()

	finished := hostloop.NewSignal(nil, hostloop.WithSignalName("finished"))

	task, err := loop.CreateTask(func(tc *scheduler.TaskContext) (any, error) {
		args, err := asyncsignal.Await(tc, finished)
		if err != nil {
			return nil, err
		}
		return args[0], nil
	})
	if err != nil {
		panic(err)
	}

	// emitted by the host once the task is waiting
	loop.CallSoon(func() {
		_ = app.Post(func() { finished.Emit("done") })
	})

	result, err := loop.RunUntilComplete(task.Future())
	if err != nil {
		panic(err)
	}
	fmt.Println(result)

	//output:
	//done
}
