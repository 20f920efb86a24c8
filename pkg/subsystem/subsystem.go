package subsystem

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marscolony/airlock-go/pkg/log"
	"github.com/marscolony/airlock-go/pkg/protocol"
	"github.com/marscolony/airlock-go/pkg/transport"
)

// DefaultPeriod is the worker iteration period.
const DefaultPeriod = 20 * time.Millisecond

// Observer receives worker activity for metrics. Methods are called from the
// worker goroutine and must not block.
type Observer interface {
	FrameSent(subsystem string, action protocol.Action)
	TransmitFailed(subsystem string)
	LinkReopened(subsystem string)
	RequestRejected(subsystem string)
}

type nopObserver struct{}

func (nopObserver) FrameSent(string, protocol.Action) {}
func (nopObserver) TransmitFailed(string)             {}
func (nopObserver) LinkReopened(string)               {}
func (nopObserver) RequestRejected(string)            {}

// Config configures a Subsystem.
type Config struct {
	Name     string
	Endpoint string
	Limits   Limits

	// Period is the worker iteration period (default 20ms).
	Period time.Duration

	// Open reopens the link after a transmit failure. Nil leaves the
	// subsystem without a link until it is restarted.
	Open    transport.Opener
	Backoff transport.BackoffConfig

	// Logger is used for operational logging. Nil discards.
	Logger *slog.Logger

	// Trace receives frame and request events. Nil disables tracing.
	Trace log.Logger
	RunID string

	Observer Observer
}

// Status is a point-in-time view of a subsystem for diagnostics.
type Status struct {
	Name     string    `json:"name"`
	ID       uuid.UUID `json:"id"`
	Endpoint string    `json:"endpoint"`
	State    string    `json:"state"`
	Running  bool      `json:"running"`
	Pending  bool      `json:"pending"`
	LinkUp   bool      `json:"link_up"`
	Sent     uint64    `json:"frames_sent"`
	Failures uint64    `json:"transmit_failures"`
	LastSent time.Time `json:"last_sent,omitzero"`

	// Feedback is the actuator's reply summary as of the last frame sent,
	// for links that read replies.
	Feedback *transport.Feedback `json:"feedback,omitempty"`
}

// Subsystem is one independently running actuator channel.
type Subsystem struct {
	cfg      Config
	id       uuid.UUID
	logger   *slog.Logger
	trace    log.Logger
	observer Observer

	mu        sync.Mutex
	requested *Request
	state     string
	started   bool
	running   bool
	stopped   bool
	linkUp    bool
	sent      uint64
	failures  uint64
	lastSent  time.Time
	feedback  *transport.Feedback

	// Owned by the worker goroutine.
	link    transport.Link
	backoff *transport.Backoff
	retryAt time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a subsystem around an open link. A nil link is a startup
// failure.
func New(cfg Config, link transport.Link) (*Subsystem, error) {
	if cfg.Name == "" {
		return nil, &StartupError{Name: "(unnamed)", Err: errors.New("name is required")}
	}
	if link == nil {
		return nil, &StartupError{Name: cfg.Name, Err: ErrNoLink}
	}
	if cfg.Limits.MaxProcedure == 0 {
		return nil, &StartupError{Name: cfg.Name, Err: errors.New("no procedures defined")}
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()
	return &Subsystem{
		cfg:      cfg,
		id:       id,
		logger:   logger.With("subsystem", cfg.Name, "id", id.String()[:8]),
		trace:    log.OrNoop(cfg.Trace),
		observer: observer,
		state:    "Idle",
		linkUp:   true,
		link:     link,
		backoff:  transport.NewBackoffWithConfig(cfg.Backoff),
		ctx:      ctx,
		cancel:   cancel,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Name returns the subsystem name.
func (s *Subsystem) Name() string {
	return s.cfg.Name
}

// ID returns the opaque handle assigned at construction.
func (s *Subsystem) ID() uuid.UUID {
	return s.id
}

// Limits returns the request limits.
func (s *Subsystem) Limits() Limits {
	return s.cfg.Limits
}

// Start launches the worker goroutine. It is a no-op after the first call
// or after Stop.
func (s *Subsystem) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.running = true
	go s.run()
}

// Stop signals the worker to exit. It does not wait; use Done.
func (s *Subsystem) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		neverStarted := !s.started
		s.started = true
		s.mu.Unlock()

		close(s.stop)
		s.cancel()
		if neverStarted {
			if s.link != nil {
				_ = s.link.Close()
			}
			close(s.done)
		}
	})
}

// Done is closed once the worker has exited.
func (s *Subsystem) Done() <-chan struct{} {
	return s.done
}

// RequestNewState validates req and installs it as the pending request,
// replacing any request the worker has not yet taken.
func (s *Subsystem) RequestNewState(req Request) error {
	if err := s.cfg.Limits.Validate(s.cfg.Name, req); err != nil {
		s.observer.RequestRejected(s.cfg.Name)
		s.traceRequest(req, err.Error())
		return err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	r := req
	s.requested = &r
	s.mu.Unlock()

	s.traceRequest(req, "")
	return nil
}

// Pending returns a copy of the request the worker has not taken yet.
func (s *Subsystem) Pending() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requested == nil {
		return Request{}, false
	}
	return *s.requested, true
}

// Update runs fn under the subsystem lock and records the state name it
// returns. fn must not call back into the subsystem.
func (s *Subsystem) Update(fn func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn()
}

// State returns the last recorded state name.
func (s *Subsystem) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the worker is active.
func (s *Subsystem) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a consistent snapshot for diagnostics.
func (s *Subsystem) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Name:     s.cfg.Name,
		ID:       s.id,
		Endpoint: s.cfg.Endpoint,
		State:    s.state,
		Running:  s.running,
		Pending:  s.requested != nil,
		LinkUp:   s.linkUp,
		Sent:     s.sent,
		Failures: s.failures,
		LastSent: s.lastSent,
		Feedback: s.feedback,
	}
}

func (s *Subsystem) run() {
	defer close(s.done)
	defer s.shutdown()

	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.iterate()

		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

func (s *Subsystem) iterate() {
	if s.link == nil && !s.reopen() {
		return
	}

	req, ok := s.take()
	if !ok {
		return
	}
	s.apply(req)
}

// take copies and clears the pending request.
func (s *Subsystem) take() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requested == nil {
		return Request{}, false
	}
	req := *s.requested
	s.requested = nil
	return req, true
}

// requeue reinstalls a request that failed to transmit unless the supervisor
// has already replaced it.
func (s *Subsystem) requeue(req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requested == nil && !s.stopped {
		s.requested = &req
	}
}

func (s *Subsystem) message(req Request) protocol.Message {
	if abort := s.cfg.Limits.AbortProcedure; abort != 0 && req.Procedure == abort {
		return protocol.Abort(req.Procedure)
	}
	return protocol.Apply(req.Procedure, req.Target)
}

func (s *Subsystem) apply(req Request) {
	msg := s.message(req)
	frame, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error("encode failed", "procedure", req.Procedure, "error", err)
		return
	}

	if err := s.link.Transmit(frame); err != nil {
		s.fail(req, err)
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.sent++
	s.lastSent = now
	if src, ok := s.link.(transport.FeedbackSource); ok {
		fb := src.Feedback()
		if prev := s.feedback; prev != nil && fb.Nacks > prev.Nacks {
			s.logger.Warn("actuator rejected frames", "count", fb.Nacks-prev.Nacks, "code", fb.LastCode)
		}
		s.feedback = &fb
	}
	s.mu.Unlock()

	s.observer.FrameSent(s.cfg.Name, msg.Action)
	s.trace.Log(log.Event{
		Timestamp: now,
		RunID:     s.cfg.RunID,
		Subsystem: s.cfg.Name,
		Direction: log.DirectionOut,
		Layer:     log.LayerLink,
		Category:  log.CategoryFrame,
		Frame: &log.FrameEvent{
			Size:      len(frame),
			Data:      frame,
			Action:    uint8(msg.Action),
			Procedure: msg.Procedure,
		},
	})
	s.logger.Debug("frame sent", "message", msg.String(), "latency", now.Sub(req.IssuedAt))
}

func (s *Subsystem) fail(req Request, err error) {
	s.logger.Warn("transmit failed, closing link", "error", err)
	_ = s.link.Close()
	s.link = nil

	s.mu.Lock()
	s.linkUp = false
	s.failures++
	s.mu.Unlock()
	s.requeue(req)

	s.observer.TransmitFailed(s.cfg.Name)
	s.trace.Log(log.Event{
		Timestamp: time.Now(),
		RunID:     s.cfg.RunID,
		Subsystem: s.cfg.Name,
		Direction: log.DirectionOut,
		Layer:     log.LayerLink,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Layer: log.LayerLink, Message: err.Error(), Context: "transmit"},
	})
	s.retryAt = time.Now().Add(s.backoff.Next())
}

// reopen attempts to restore the link once the backoff delay has passed.
func (s *Subsystem) reopen() bool {
	if s.cfg.Open == nil || time.Now().Before(s.retryAt) {
		return false
	}

	link, err := s.cfg.Open(s.ctx, s.cfg.Endpoint)
	if err != nil || link == nil {
		delay := s.backoff.Next()
		s.retryAt = time.Now().Add(delay)
		s.logger.Debug("reopen failed", "error", err, "retry_in", delay)
		return false
	}

	s.link = link
	s.backoff.Reset()
	s.mu.Lock()
	s.linkUp = true
	s.mu.Unlock()

	s.observer.LinkReopened(s.cfg.Name)
	s.logger.Info("link reopened", "endpoint", s.cfg.Endpoint)
	return true
}

func (s *Subsystem) shutdown() {
	if s.link != nil {
		if err := s.link.Close(); err != nil {
			s.logger.Debug("close link", "error", err)
		}
		s.link = nil
	}

	s.mu.Lock()
	s.running = false
	s.linkUp = false
	s.mu.Unlock()
	s.logger.Debug("worker stopped")
}

func (s *Subsystem) traceRequest(req Request, rejected string) {
	s.trace.Log(log.Event{
		Timestamp: time.Now(),
		RunID:     s.cfg.RunID,
		Subsystem: s.cfg.Name,
		Direction: log.DirectionOut,
		Layer:     log.LayerSubsystem,
		Category:  log.CategoryRequest,
		Request: &log.RequestEvent{
			Procedure: req.Procedure,
			Target:    req.Target,
			Rejected:  rejected,
		},
	})
}
