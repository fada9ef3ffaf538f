package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/joeycumines/go-asyncslot/asyncsignal"
	"github.com/joeycumines/go-asyncslot/bridge"
	"github.com/joeycumines/go-asyncslot/hostloop"
	"github.com/joeycumines/go-asyncslot/scheduler"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
)

type demoOptions struct {
	mode     string
	width    int
	height   int
	frames   int
	every    int
	interval time.Duration
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := demoOptions{}
	cmd := &cobra.Command{
		Use:   "bouncedemo",
		Short: "Bounce a ball on host timers while a bridged task counts bounces",
		Long: `Runs a bouncing ball simulation driven by host timers. A task on a
scheduler loop, bridged into the host event loop, awaits each bounce.

In nested mode the loop starts its own host event loop and runs until the
task completes. In attached mode the host application runs its main event
loop, and the scheduler loop only reacts to it.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.mode, "mode", "nested", "how the scheduler loop runs: nested or attached")
	flags.IntVar(&opts.width, "width", 200, "width of the box")
	flags.IntVar(&opts.height, "height", 100, "height of the box")
	flags.IntVar(&opts.frames, "frames", 60, "number of frames to simulate")
	flags.IntVar(&opts.every, "render-every", 10, "render every n frames, 0 to disable")
	flags.DurationVar(&opts.interval, "interval", 50*time.Millisecond, "time between frames")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func newLogger(w io.Writer, verbose bool) *logiface.Logger[logiface.Event] {
	level := logiface.LevelWarning
	if verbose {
		level = logiface.LevelDebug
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

func runDemo(out, errOut io.Writer, opts demoOptions) error {
	if opts.width <= 0 || opts.height <= 0 || opts.frames <= 0 {
		return errors.New("bouncedemo: width, height and frames must be positive")
	}
	if opts.mode != "nested" && opts.mode != "attached" {
		return fmt.Errorf("bouncedemo: unknown mode %q", opts.mode)
	}

	logger := newLogger(errOut, opts.verbose)

	app, err := hostloop.NewApplication(hostloop.WithLogger(logger), hostloop.WithName("bouncedemo"))
	if err != nil {
		return err
	}
	defer app.Close()

	loop, err := bridge.New(bridge.WithLogger(logger))
	if err != nil {
		return err
	}
	defer loop.Close()

	var (
		b        = newBall()
		bounced  = hostloop.NewSignal(nil, hostloop.WithSignalName("bounced"))
		finished = hostloop.NewSignal(nil, hostloop.WithSignalName("finished"))
		frame    int
		tick     func()
	)
	tick = func() {
		frame++
		if b.step(opts.width, opts.height) {
			bounced.Emit(frame)
		}
		if opts.every > 0 && frame%opts.every == 0 {
			fmt.Fprintf(out, "frame %d\n%s", frame, b.render(opts.width, opts.height, 40, 10))
		}
		if frame < opts.frames {
			app.AfterFunc(opts.interval, tick)
			return
		}
		finished.Emit(frame)
	}

	task, err := loop.CreateTask(func(tc *scheduler.TaskContext) (any, error) {
		events := asyncsignal.NewMulti(map[any]asyncsignal.Source{
			"bounced":  bounced,
			"finished": finished,
		})
		var count int
		for {
			args, err := asyncsignal.Await(tc, events)
			if err != nil {
				return count, err
			}
			at := args[1].([]any)[0]
			if args[0] == "finished" {
				fmt.Fprintf(out, "finished at frame %v\n", at)
				return count, nil
			}
			count++
			fmt.Fprintf(out, "bounce %d at frame %v\n", count, at)
		}
	}, scheduler.WithTaskName("bounce-counter"))
	if err != nil {
		return err
	}

	// the first frame is scheduled from the loop, once the task is waiting
	loop.CallSoon(func() { app.AfterFunc(opts.interval, tick) })

	var result any
	switch opts.mode {
	case "nested":
		result, err = loop.RunUntilComplete(task.Future())
	case "attached":
		if err := loop.Enter(); err != nil {
			return err
		}
		task.AddDoneCallback(func(*scheduler.Future) { app.Quit() })
		code := app.Exec()
		if err := loop.Exit(); err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("bouncedemo: host exited with code %d", code)
		}
		result, err = task.Result()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "bounces: %d\n", result)
	return nil
}
