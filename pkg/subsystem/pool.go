package subsystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/marscolony/airlock-go/pkg/transport"
)

// Pool owns every live Subsystem for the lifetime of the process.
type Pool struct {
	mu         sync.RWMutex
	subsystems map[string]*Subsystem
	order      []string
	logger     *slog.Logger
}

// NewPool creates an empty pool. A nil logger discards.
func NewPool(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pool{
		subsystems: make(map[string]*Subsystem),
		logger:     logger,
	}
}

// Register adds a subsystem under its name.
func (p *Pool) Register(s *Subsystem) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subsystems[s.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, s.Name())
	}
	p.subsystems[s.Name()] = s
	p.order = append(p.order, s.Name())
	return nil
}

// Get returns the subsystem registered under name.
func (p *Pool) Get(name string) (*Subsystem, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.subsystems[name]
	return s, ok
}

// Names returns the registered names in registration order.
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// Len returns the number of registered subsystems.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Snapshot returns the status of every subsystem in registration order.
func (p *Pool) Snapshot() []Status {
	out := make([]Status, 0, p.Len())
	for _, s := range p.list() {
		out = append(out, s.Status())
	}
	return out
}

// StopAll signals every subsystem to stop and waits for the workers to exit
// or for ctx to expire, whichever comes first.
func (p *Pool) StopAll(ctx context.Context) error {
	subs := p.list()
	for _, s := range subs {
		s.Stop()
	}

	var errs []error
	for _, s := range subs {
		select {
		case <-s.Done():
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("stop %s: %w", s.Name(), ctx.Err()))
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.logger.Warn("subsystems did not stop in time", "error", err)
		return err
	}
	p.logger.Info("all subsystems stopped", "count", len(subs))
	return nil
}

func (p *Pool) list() []*Subsystem {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Subsystem, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.subsystems[name])
	}
	return out
}

// Launch opens, registers and starts every configured subsystem. A subsystem
// that fails to start is logged and skipped; the rest still come up. The
// returned errors describe the skipped ones.
func Launch(ctx context.Context, pool *Pool, cfgs []Config, open transport.Opener) []*StartupError {
	var failed []*StartupError

	for _, cfg := range cfgs {
		if cfg.Open == nil {
			cfg.Open = open
		}

		s, err := launchOne(ctx, pool, cfg, open)
		if err != nil {
			var se *StartupError
			if !errors.As(err, &se) {
				se = &StartupError{Name: cfg.Name, Err: err}
			}
			pool.logger.Warn("subsystem unavailable, continuing without it",
				"subsystem", cfg.Name, "endpoint", cfg.Endpoint, "error", se.Err)
			failed = append(failed, se)
			continue
		}

		pool.logger.Info("subsystem started", "subsystem", s.Name(), "id", s.ID(), "endpoint", cfg.Endpoint)
	}

	return failed
}

func launchOne(ctx context.Context, pool *Pool, cfg Config, open transport.Opener) (*Subsystem, error) {
	if open == nil {
		return nil, &StartupError{Name: cfg.Name, Err: ErrNoLink}
	}

	link, err := open(ctx, cfg.Endpoint)
	if err != nil {
		return nil, &StartupError{Name: cfg.Name, Err: err}
	}

	s, err := New(cfg, link)
	if err != nil {
		if link != nil {
			_ = link.Close()
		}
		return nil, err
	}

	if err := pool.Register(s); err != nil {
		_ = link.Close()
		return nil, &StartupError{Name: cfg.Name, Err: err}
	}

	s.Start()
	return s, nil
}
