// Package worker coordinates long-running background work between a
// UI-bound application and a durable host scheduler.
//
// The host scheduler only understands serialized job descriptors and
// survives the submitting process; work closures do not. This module
// bridges the two: the task package keeps an in-memory registry of
// pending closures keyed by generated task identifiers, submits a
// minimal descriptor to the host, and converts the host's asynchronous
// state stream back into a blocking, typed Await. The dialog package
// keeps a single logical progress dialog alive across UI-session
// destruction and recreation, and the notify package throttles progress
// notifications posted outside the UI session.
//
// # Quick Start
//
//	eng, err := engine.New(
//	    engine.WithConfig(worker.DefaultConfig()),
//	    engine.WithSink(sink),
//	)
//	if err != nil { ... }
//	eng.Start(ctx)
//	defer eng.Stop(ctx)
//
//	h, err := engine.Submit(ctx, eng, func(ctx context.Context, _ *notify.Progress) (string, error) {
//	    return downloadReport(ctx)
//	})
//	if err != nil { ... }
//	report, err := h.Await(ctx)
//
// # Architecture
//
// The root package holds shared configuration and the sentinel error
// taxonomy. Subsystems live below it: params (typed descriptor codec),
// notify (notification throttling), stream (per-task state hub), host
// (scheduler boundary with memory and Redis descriptor stores), task
// (work registry + awaiter) and dialog (modeless dialog lifecycle).
// The engine package wires everything together.
//
// Only descriptors survive a process restart. Closures registered
// before the restart are gone; the host re-invoking their tasks fails
// with ErrRegistryDesync.
package worker
