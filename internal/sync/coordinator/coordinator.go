package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"k8s.io/utils/clock"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/auth"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/fetch"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/status"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/scheduler"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/state"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/telemetry"
)

var (
	// ErrSessionNotFound is returned for operations on an unknown session
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when registering an ID twice
	ErrSessionExists = errors.New("session already registered")

	// ErrStopped is returned by Register once the coordinator is stopped
	ErrStopped = errors.New("coordinator stopped")
)

// Session is a registered scheduler seen without its data type
type Session interface {
	ID() string
	Config() pkgsync.SessionConfig
	View() pkgsync.SessionView
	SubscribeView(fn func(pkgsync.SessionView)) func()
	ForceRefresh()
	Reconfigure(patch pkgsync.SessionPatch) error
	Dispose()
	Done() <-chan struct{}
}

// Coordinator owns every polling session of the process. It restores their
// persisted state, persists each published state and fans states out to
// process-wide subscribers such as the API stream and the NATS notifier.
type Coordinator struct {
	activity scheduler.Activity
	guard    auth.SessionGuard
	stateSvc state.SessionStateService

	clock        clock.Clock
	syncMetrics  *telemetry.SyncMetrics
	executorOpts []fetch.Option
	logger       *slog.Logger

	mu          sync.RWMutex
	sessions    map[string]Session
	restored    map[string]*status.SessionStatus
	subscribers []viewSubscriber
	nextSub     uint64
	stopped     bool
}

type viewSubscriber struct {
	id uint64
	fn func(pkgsync.SessionView)
}

// Option is a function that configures the coordinator
type Option func(*Coordinator)

// WithClock sets the clock used by every scheduler and executor
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) {
		co.clock = c
	}
}

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(co *Coordinator) {
		co.syncMetrics = metrics
	}
}

// WithExecutorOptions sets options applied to the executor of every session
func WithExecutorOptions(opts ...fetch.Option) Option {
	return func(co *Coordinator) {
		co.executorOpts = append(co.executorOpts, opts...)
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) {
		co.logger = l
	}
}

// New creates a coordinator with injected dependencies
func New(
	activity scheduler.Activity,
	guard auth.SessionGuard,
	stateSvc state.SessionStateService,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		activity: activity,
		guard:    guard,
		stateSvc: stateSvc,
		clock:    clock.RealClock{},
		logger:   slog.Default(),
		sessions: make(map[string]Session),
		restored: make(map[string]*status.SessionStatus),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize loads the persisted state of the sessions about to be
// registered. Sessions registered afterwards continue from that state.
func (c *Coordinator) Initialize(ctx context.Context, sessionIDs []string) error {
	restored, err := c.stateSvc.Initialize(ctx, sessionIDs)
	if err != nil {
		return fmt.Errorf("failed to initialize session state: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, st := range restored {
		c.restored[id] = st
	}
	c.logger.Info("Initialized session state", "sessions", len(sessionIDs), "restored", len(restored))
	return nil
}

// Register creates, tracks and starts a scheduler for cfg
func Register[T any](
	c *Coordinator,
	cfg pkgsync.SessionConfig,
	fn fetch.Func[T],
	opts ...scheduler.Option,
) (*scheduler.Scheduler[T], error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	if _, exists := c.sessions[cfg.ID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, cfg.ID)
	}

	executor := fetch.NewExecutor(c.guard, append([]fetch.Option{
		fetch.WithClock(c.clock),
		fetch.WithLabel(cfg.ID),
	}, c.executorOpts...)...)

	base := []scheduler.Option{
		scheduler.WithClock(c.clock),
		scheduler.WithMetrics(c.syncMetrics),
		scheduler.WithSessionGuard(c.guard),
		scheduler.WithLogger(c.logger),
	}
	if st, ok := c.restored[cfg.ID]; ok {
		base = append(base, scheduler.WithRestoredState(st.PollingState))
	}

	s, err := scheduler.New(cfg, c.activity, executor, fn, append(base, opts...)...)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	s.SubscribeView(c.onState)
	c.sessions[cfg.ID] = s
	delete(c.restored, cfg.ID)
	c.mu.Unlock()

	s.Start()
	c.logger.Info("Registered session", "session", cfg.ID)
	return s, nil
}

// Get returns the session with the given ID
func (c *Coordinator) Get(id string) (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	return s, ok
}

// View returns the current view of the session with the given ID
func (c *Coordinator) View(id string) (pkgsync.SessionView, error) {
	s, ok := c.Get(id)
	if !ok {
		return pkgsync.SessionView{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.View(), nil
}

// SessionConfig returns the configuration in force for the session
func (c *Coordinator) SessionConfig(id string) (pkgsync.SessionConfig, error) {
	s, ok := c.Get(id)
	if !ok {
		return pkgsync.SessionConfig{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Config(), nil
}

// List returns the current view of every session ordered by ID
func (c *Coordinator) List() []pkgsync.SessionView {
	c.mu.RLock()
	sessions := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.RUnlock()

	views := make([]pkgsync.SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, s.View())
	}
	slices.SortFunc(views, func(a, b pkgsync.SessionView) int {
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return views
}

// Subscribe registers fn for the states published by every session.
// Callbacks run on the publishing scheduler's goroutine and must not block.
func (c *Coordinator) Subscribe(fn func(pkgsync.SessionView)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers = append(c.subscribers, viewSubscriber{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.subscribers = slices.DeleteFunc(c.subscribers, func(s viewSubscriber) bool {
				return s.id == id
			})
		})
	}
}

// ForceRefresh asks the session to fetch now
func (c *Coordinator) ForceRefresh(id string) error {
	s, ok := c.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.ForceRefresh()
	return nil
}

// Reconfigure applies patch to the session configuration
func (c *Coordinator) Reconfigure(id string, patch pkgsync.SessionPatch) error {
	s, ok := c.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Reconfigure(patch)
}

// Dispose stops a session, waits for it to exit and forgets its persisted state
func (c *Coordinator) Dispose(ctx context.Context, id string) error {
	c.mu.Lock()
	s, ok := c.sessions[id]
	delete(c.sessions, id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.Dispose()
	select {
	case <-s.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := c.stateSvc.DeleteStatus(ctx, id); err != nil {
		c.logger.Warn("Failed to delete session state", "session", id, "error", err)
	}
	c.logger.Info("Disposed session", "session", id)
	return nil
}

// Start blocks until ctx is canceled, then stops every session
func (c *Coordinator) Start(ctx context.Context) error {
	c.logger.Info("Starting sync coordinator", "sessions", len(c.List()))
	<-ctx.Done()
	c.logger.Info("Sync coordinator stopping")
	return c.Stop(context.WithoutCancel(ctx))
}

// Stop disposes every session and waits for their schedulers to exit.
// The last published state of each session stays persisted.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	sessions := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.sessions = make(map[string]Session)
	c.mu.Unlock()

	for _, s := range sessions {
		s.Dispose()
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return fmt.Errorf("failed to stop sessions: %w", ctx.Err())
		}
	}
	return nil
}

func (c *Coordinator) onState(view pkgsync.SessionView) {
	st := status.FromState(view.PollingState, c.clock.Now())
	if err := c.stateSvc.UpdateStatus(context.Background(), view.SessionID, st); err != nil {
		c.logger.Error("Error updating session state", "session", view.SessionID, "error", err)
	}

	c.mu.RLock()
	subs := make([]viewSubscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(view)
	}
}
