// Package sync defines the shared vocabulary of the adaptive synchronization
// controller: per-session polling configuration, the lifecycle phases of a
// polling session and the observable PollingState that schedulers publish.
//
// # Components
//
// The controller is split across subpackages that depend on the types here:
//
//   - internal/activity: the ActivitySignal (visibility and last interaction)
//   - internal/policy: pure adaptive interval computation and pause decisions
//   - sync/backoff: the BackoffController that lengthens intervals on failure
//   - sync/scheduler: the per-session PollingScheduler state machine
//   - sync/coordinator: owns all schedulers of the process, persists their
//     state and exposes them to the API layer
//   - sync/state: persistence of the last observed state per session
//
// # Phases
//
// A session moves through these phases:
//
//	Idle -> Scheduled -> Fetching -> Scheduled ...
//	Scheduled -> Paused (stop mode only) -> Fetching
//	any -> Disposed (terminal)
//
// At most one fetch is in flight per session at any time, and every published
// state carries a strictly increasing sequence number.
package sync
