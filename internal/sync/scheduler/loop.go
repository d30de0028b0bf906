package scheduler

import (
	"time"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/fetch"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/policy"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

func (s *Scheduler[T]) run(initial time.Duration, unsubscribe func()) {
	defer close(s.done)
	defer func() {
		s.disarm()
		s.unwatch()
		unsubscribe()
	}()

	if s.opts.fetchOnStart {
		s.fire()
	} else {
		s.arm(initial)
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.timerC:
			s.fire()
		case <-s.refreshCh:
			s.forceRefresh()
		case <-s.activityCh:
			s.reevaluate()
		case <-s.wakeCh:
			s.reevaluate()
		}
	}
}

// arm starts a wait of d from now
func (s *Scheduler[T]) arm(d time.Duration) {
	s.disarm()
	s.waitStart = s.opts.clock.Now()
	s.armedFor = d
	s.timer = s.opts.clock.NewTimer(d)
	s.timerC = s.timer.C()
}

// rearm changes the interval of the current wait, keeping the time already waited
func (s *Scheduler[T]) rearm(d time.Duration) {
	s.opts.metrics.RecordInterval(s.ctx, s.ID(), d)

	remaining := d - s.opts.clock.Since(s.waitStart)
	if remaining <= 0 {
		s.commit(func(st *State[T]) {
			st.CurrentInterval = d
		})
		s.fire()
		return
	}

	start := s.waitStart
	s.arm(remaining)
	s.waitStart = start
	s.armedFor = d
	s.commit(func(st *State[T]) {
		st.CurrentInterval = d
	})
}

func (s *Scheduler[T]) disarm() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.timerC = nil
}

// fire handles an elapsed wait: pause in stop mode when engagement is gone,
// fetch otherwise
func (s *Scheduler[T]) fire() {
	s.disarm()

	cfg := s.Config()
	if cfg.PauseMode == pkgsync.PauseModeStop && policy.ShouldPause(cfg, s.activity) {
		s.commit(func(st *State[T]) {
			st.Phase = pkgsync.PhasePaused
			st.Paused = true
		})
		s.log.Info("Session paused", "reason", policy.Reason(cfg, s.activity))
		return
	}
	s.fetch()
}

func (s *Scheduler[T]) forceRefresh() {
	switch s.CurrentState().Phase {
	case pkgsync.PhaseScheduled, pkgsync.PhasePaused:
		s.disarm()
		s.log.Debug("Forced refresh")
		s.fetch()
	}
}

func (s *Scheduler[T]) fetch() {
	attemptAt := s.opts.clock.Now()
	if !s.commit(func(st *State[T]) {
		st.Phase = pkgsync.PhaseFetching
		st.Paused = false
		st.LastAttemptAt = &attemptAt
	}) {
		return
	}

	data, err := fetch.Do(s.ctx, s.executor, s.fetchFn)
	if s.ctx.Err() != nil {
		return
	}

	var (
		next    time.Duration
		outcome pkgsync.Outcome
	)
	if err == nil {
		next = s.backoff.OnSuccess(policy.ComputeInterval(s.Config(), s.activity))
		outcome = pkgsync.SuccessOutcome()
	} else {
		next = s.backoff.OnFailure(s.CurrentState().CurrentInterval)
		outcome = pkgsync.FailureOutcome(err)
		s.log.Warn("Fetch failed", "kind", outcome.Kind, "next_interval", next, "error", err)
	}
	errs := s.backoff.ConsecutiveErrors()

	finishedAt := s.opts.clock.Now()
	s.arm(next)
	s.commit(func(st *State[T]) {
		st.Phase = pkgsync.PhaseScheduled
		st.CurrentInterval = next
		st.ConsecutiveErrors = errs
		st.LastOutcome = &outcome
		if outcome.Success {
			st.Data = data
			st.LastSuccessAt = &finishedAt
		}
	})

	kind := "success"
	if !outcome.Success {
		kind = string(outcome.Kind)
	}
	s.opts.metrics.RecordFetch(s.ctx, s.ID(), kind, next, errs)
}

// reevaluate reacts to engagement or configuration changes
func (s *Scheduler[T]) reevaluate() {
	cfg := s.Config()

	switch s.CurrentState().Phase {
	case pkgsync.PhasePaused:
		if cfg.PauseMode != pkgsync.PauseModeStop || !policy.ShouldPause(cfg, s.activity) {
			s.log.Info("Session resumed")
			s.fetch()
		}

	case pkgsync.PhaseScheduled:
		var next time.Duration
		if s.backoff.BackingOff() {
			next = s.backoff.Clamp(s.CurrentState().CurrentInterval)
		} else {
			next = policy.ComputeInterval(cfg, s.activity)
		}
		if next != s.armedFor {
			s.log.Debug("Interval changed", "from", s.armedFor, "to", next)
			s.rearm(next)
		}
	}
}
