// Package service supervises evaluation jobs running as OS processes.
//
// Overview
// The Supervisor admits a job only while fewer than MaxConcurrency jobs are in
// progress. There is no queue: a rejected Start returns false and the caller
// decides when to retry. Every admitted job is tracked as a Task in an
// explicitly constructed Registry shared with the rest of the program.
//
// Each Task owns:
//   - one OS process started with stdout/stderr connected to pipes
//   - two drain goroutines copying pipe lines onto bounded channels; when a
//     channel is full the drain moves its content into the line buffer, so the
//     child never blocks on a full pipe
//   - one monitor goroutine waiting for the process to exit
//
// Data flow:
//
//	Supervisor.Start ---> Task{id} ---> exec.Cmd
//	                        |  drain(stdout) --> chan --> lines
//	                        |  drain(stderr) --> chan --> lines
//	                        |  monitor: Wait -> final drain -> finish -> onComplete
//	Supervisor.Status ----> collect (non-blocking) -> Snapshot
//
// Invariants:
//   - RunningCount() <= MaxConcurrency() at any time; admission check and
//     registration happen under one lock.
//   - Status moves NOT_STARTED -> IN_PROGRESS -> COMPLETED | ABORTED only and the
//     monitor is the single writer of the terminal state.
//   - Output buffers are append-only.
//   - Stop on an unknown or finished task is a no-op returning false.
//
// Notifier persists the terminal state of a finished task into a model.Store,
// Canceller implements user initiated cancellation and Sweeper evicts finished
// tasks after a retention period.
package service
