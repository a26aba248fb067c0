// Package dryrun provides the runtime half of dry-run instrumentation.
//
// Programs instrumented by the dryrun tool call into this package to ask
// which mode the current goroutine runs in, to carry that mode across
// executor and future hand-offs, and to capture and restore method state at
// divergence points.
//
// # Quick Start
//
// Instrument a program and run it with the pilot property set:
//
//	$ dryrun instrument --config dryrun.yaml --out build/ classes/*.jir
//	$ dryrun run --class demo.Main --method main --prop PilotMode=enabled build/*.jir
//
// Go hosts can use the same runtime directly:
//
//	dryrun.CreateDryRunBaggage()
//	go dryrun.Wrap(func() {
//		// runs in dry-run mode on the new goroutine
//	})()
//
// # API Overview
//
// The package provides functions for:
//   - Mode queries: [IsDryRun], [IsFastForward]
//   - Mode switches: [ClearBaggage], [CreateDryRunBaggage],
//     [CreateShadowBaggage], [CreateFastForwardBaggage]
//   - Hand-off: [Wrap], [RunWith], [WithBaggage], [FromContext]
//   - Divergence chains: [BeginChain], [JoinChain], [EndChain]
//   - Snapshots: [RecordState], [GetState], [RecordFieldState], [GetFieldState]
//   - Version information: [GetInfo], [Version]
//
// # Snapshots
//
// A capture is stored under the method signature of its divergence point
// and the chain id of the capturing goroutine. The first capture wins;
// later ones for the same key are dropped. A restore without a capture
// fails with [ErrStaleOrMissingSnapshot]:
//
//	snap, err := dryrun.GetState("<demo.Worker: void run()>")
//	if errors.Is(err, dryrun.ErrStaleOrMissingSnapshot) {
//		// the shadow ran ahead of its primary
//	}
//
// # Examples
//
// See package-level examples in the documentation:
//   - [Example] - Mode switch and hand-off
//   - [Example_snapshot] - Capture and restore
package dryrun
