// Package scheduler provides the per-session polling state machine.
//
// A Scheduler owns one goroutine that holds the session timer and runs
// fetches inline, so fetches of a session never overlap and published
// states are delivered in order. The happy-path interval comes from the
// activity policy; while fetches fail, the backoff controller decides.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/auth"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/fetch"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/policy"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/backoff"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/telemetry"
)

// ErrDisposed is returned by operations on a disposed scheduler
var ErrDisposed = errors.New("scheduler disposed")

// Activity is the engagement source read by the scheduler
type Activity interface {
	policy.Activity

	// Watch notifies after engagement changes
	Watch() (<-chan struct{}, func())
}

// State is a published PollingState with the data of the last successful fetch
type State[T any] struct {
	pkgsync.PollingState
	Data T `json:"data"`
}

// Option is a function that configures a Scheduler
type Option func(*options)

type options struct {
	clock        clock.Clock
	metrics      *telemetry.SyncMetrics
	guard        auth.SessionGuard
	restored     *pkgsync.PollingState
	fetchOnStart bool
	logger       *slog.Logger
}

// WithClock sets the clock driving the session timer
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithMetrics sets the sync metrics recorder
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSessionGuard refreshes the session right after a sign-in or token
// refresh when the last fetch failed for lack of a valid session.
func WithSessionGuard(g auth.SessionGuard) Option {
	return func(o *options) {
		o.guard = g
	}
}

// WithRestoredState continues the sequence numbers, outcome history and
// error streak of a state persisted by a previous run.
func WithRestoredState(st pkgsync.PollingState) Option {
	return func(o *options) {
		o.restored = &st
	}
}

// WithFetchOnStart fetches as soon as the scheduler starts instead of
// waiting one interval.
func WithFetchOnStart(enabled bool) Option {
	return func(o *options) {
		o.fetchOnStart = enabled
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

type subscriber[T any] struct {
	id uint64
	fn func(State[T])
}

// Scheduler drives the polling of one session
type Scheduler[T any] struct {
	activity Activity
	executor *fetch.Executor
	fetchFn  fetch.Func[T]
	backoff  *backoff.Controller
	opts     options
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	refreshCh chan struct{}
	wakeCh    chan struct{}
	done      chan struct{}

	activityCh <-chan struct{}
	unwatch    func()

	mu          sync.Mutex
	cfg         pkgsync.SessionConfig
	state       State[T]
	subscribers []subscriber[T]
	nextSub     uint64
	started     bool
	disposed    bool

	// owned by the run goroutine
	timer     clock.Timer
	timerC    <-chan time.Time
	waitStart time.Time
	armedFor  time.Duration
}

// New creates a scheduler in the Idle phase. Call Start to begin polling.
func New[T any](
	cfg pkgsync.SessionConfig,
	activity Activity,
	executor *fetch.Executor,
	fn fetch.Func[T],
	opts ...Option,
) (*Scheduler[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if activity == nil || executor == nil || fn == nil {
		return nil, errors.New("activity, executor and fetch function are required")
	}

	o := options{clock: clock.RealClock{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler[T]{
		activity:  activity,
		executor:  executor,
		fetchFn:   fn,
		backoff:   backoff.New(cfg),
		opts:      o,
		log:       o.logger.With("session", cfg.ID),
		ctx:       ctx,
		cancel:    cancel,
		refreshCh: make(chan struct{}, 1),
		wakeCh:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		cfg:       cfg,
	}

	s.state.SessionID = cfg.ID
	s.state.Phase = pkgsync.PhaseIdle
	s.state.CurrentInterval = cfg.BaseInterval
	if r := o.restored; r != nil {
		s.state.ConsecutiveErrors = r.ConsecutiveErrors
		s.state.CurrentInterval = cfg.Clamp(r.CurrentInterval)
		s.state.LastOutcome = r.LastOutcome
		s.state.LastAttemptAt = r.LastAttemptAt
		s.state.LastSuccessAt = r.LastSuccessAt
		s.state.Seq = r.Seq
		s.backoff.Restore(r.ConsecutiveErrors)
	}

	return s, nil
}

// ID returns the session ID
func (s *Scheduler[T]) ID() string {
	return s.Config().ID
}

// Config returns the current session configuration
func (s *Scheduler[T]) Config() pkgsync.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start moves the session from Idle to Scheduled and starts the timer.
// Calling Start more than once, or after Dispose, does nothing.
func (s *Scheduler[T]) Start() {
	s.mu.Lock()
	if s.started || s.disposed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.activityCh, s.unwatch = s.activity.Watch()
	unsubscribe := func() {}
	if s.opts.guard != nil {
		unsubscribe = s.opts.guard.OnSessionChange(s.onSessionChange)
	}

	interval := s.initialInterval()
	s.commit(func(st *State[T]) {
		st.Phase = pkgsync.PhaseScheduled
		st.CurrentInterval = interval
	})

	s.log.Info("Session scheduled", "interval", interval, "fetch_on_start", s.opts.fetchOnStart)
	go s.run(interval, unsubscribe)
}

func (s *Scheduler[T]) initialInterval() time.Duration {
	if s.backoff.BackingOff() {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.backoff.Clamp(s.state.CurrentInterval)
	}
	return policy.ComputeInterval(s.Config(), s.activity)
}

// CurrentState returns the last published state
func (s *Scheduler[T]) CurrentState() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every state published from now on.
// Callbacks run on the scheduler goroutine, in publication order, and must not block.
func (s *Scheduler[T]) Subscribe(fn func(State[T])) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers = append(s.subscribers, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub.id == id {
					s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// ForceRefresh fetches immediately when the session is Scheduled or Paused.
// It is ignored in every other phase.
func (s *Scheduler[T]) ForceRefresh() {
	s.mu.Lock()
	phase, disposed := s.state.Phase, s.disposed
	s.mu.Unlock()

	if disposed || (phase != pkgsync.PhaseScheduled && phase != pkgsync.PhasePaused) {
		return
	}
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// Reconfigure applies patch to the session configuration. The running
// interval is re-evaluated against the new configuration.
func (s *Scheduler[T]) Reconfigure(patch pkgsync.SessionPatch) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	next := s.cfg.Apply(patch)
	next.ID = s.cfg.ID
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg = next
	s.mu.Unlock()

	s.backoff.Reconfigure(next)
	s.wake()
	return nil
}

// Dispose stops the session from any phase. An in-flight fetch is canceled
// and its result is never published. Dispose is idempotent and does not wait;
// use Done to wait for the scheduler goroutine to exit.
func (s *Scheduler[T]) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.state.Phase = pkgsync.PhaseDisposed
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if !started {
		close(s.done)
	}
	s.log.Info("Session disposed")
}

// Done is closed once the scheduler has fully stopped after Dispose
func (s *Scheduler[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler[T]) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler[T]) onSessionChange(c auth.Change) {
	if c.Kind != auth.ChangeSignedIn && c.Kind != auth.ChangeRefreshed {
		return
	}
	st := s.CurrentState()
	if st.LastOutcome == nil || st.LastOutcome.Success {
		return
	}
	if st.LastOutcome.Kind == fetch.KindNoSession || st.LastOutcome.Kind == fetch.KindAuth {
		s.log.Info("Session credentials changed, refreshing", "change", c.Kind)
		s.ForceRefresh()
	}
}

// commit applies fn to the state and publishes the result to subscribers.
// Nothing is published once the scheduler is disposed.
func (s *Scheduler[T]) commit(fn func(st *State[T])) bool {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false
	}
	fn(&s.state)
	s.state.Seq++
	st := s.state
	subs := make([]subscriber[T], len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(st)
	}
	return true
}

// View returns the current state with its data as an untyped value
func (s *Scheduler[T]) View() pkgsync.SessionView {
	return toView(s.CurrentState())
}

// SubscribeView is Subscribe for consumers that do not know the data type
func (s *Scheduler[T]) SubscribeView(fn func(pkgsync.SessionView)) func() {
	return s.Subscribe(func(st State[T]) {
		fn(toView(st))
	})
}

func toView[T any](st State[T]) pkgsync.SessionView {
	return pkgsync.SessionView{PollingState: st.PollingState, Data: st.Data}
}
