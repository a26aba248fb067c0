package dryrun_test

import (
	"errors"
	"fmt"

	"github.com/kolkov/dryrun/dryrun"
)

// Example shows a dry-run mode switch travelling to another goroutine.
func Example() {
	dryrun.CreateDryRunBaggage()
	defer dryrun.ClearBaggage()

	done := make(chan bool)
	task := dryrun.Wrap(func() { done <- dryrun.IsDryRun() })
	go task()
	fmt.Println("task in dry run:", <-done)

	go func() { done <- dryrun.IsDryRun() }()
	fmt.Println("plain goroutine in dry run:", <-done)

	// Output:
	// task in dry run: true
	// plain goroutine in dry run: false
}

// Example_snapshot shows the insert-if-absent snapshot policy.
func Example_snapshot() {
	chain := dryrun.BeginChain()
	defer dryrun.EndChain(chain)
	const sig = "<demo.Worker: int compute(int)>"

	dryrun.RecordState(sig, dryrun.Snapshot{"x": 3, "y": "abc"})
	dryrun.RecordState(sig, dryrun.Snapshot{"x": 4})

	snap, _ := dryrun.GetState(sig)
	fmt.Println(snap["x"], snap["y"])

	_, err := dryrun.GetState("<demo.Worker: void idle()>")
	fmt.Println(errors.Is(err, dryrun.ErrStaleOrMissingSnapshot))

	// Output:
	// 3 abc
	// true
}
