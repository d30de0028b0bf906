// Package coordinator owns the polling sessions of the daemon.
//
// The coordinator sits on top of the per-session schedulers in
// sync/scheduler and handles:
//
//   - Registration of typed sessions behind one untyped registry
//   - Restoring persisted state on startup
//   - Persisting every published state through a state.SessionStateService
//   - Fan-out of published states to process-wide subscribers
//   - Graceful shutdown
//
// # Architecture
//
//   - sync/scheduler: timing and fetch execution of one session
//   - sync/coordinator: lifecycle, state persistence, fan-out
//   - internal/app: builds the coordinator and registers configured sessions
//
// # Usage Example
//
//	stateSvc, _ := state.NewStateService(ctx, cfg)
//	coord := coordinator.New(signal, guard, stateSvc, coordinator.WithSyncMetrics(m))
//	_ = coord.Initialize(ctx, []string{"deals"})
//
//	sessCfg, _ := coordinator.ResolveSession(cfg.Defaults, cfg.Sessions[0])
//	sched, _ := coordinator.Register(coord, sessCfg, source.Fetch)
//
//	go coord.Start(ctx)
//
// # Status Persistence
//
// Every state a scheduler publishes is written to the state service, the
// Fetching phase included. A run that stops during a fetch therefore leaves
// a Fetching record behind, which the state service resets on the next
// startup so the restored session starts Scheduled.
//
// # Subscribers
//
// Subscribe callbacks run on the publishing scheduler's goroutine after the
// state is persisted, in publication order for each session. They must not
// block; slow consumers buffer on their side.
package coordinator
