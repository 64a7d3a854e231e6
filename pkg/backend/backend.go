// Package backend places a round's computation on local devices. A Backend
// is launched once per round; the resulting Session wraps the model,
// optimizer and feeds handed to the training engine, and every wrapped
// handle stops working once the session is closed.
package backend

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/absmach/flclient/pkg/ml"
	"github.com/absmach/flclient/pkg/params"
	"github.com/google/uuid"
)

type Backend struct {
	cfg Config
}

func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Backend{cfg: cfg.normalize()}, nil
}

func (b *Backend) Config() Config {
	return b.cfg
}

// Context describes the execution environment of a launched session.
type Context struct {
	SessionID     string
	Accelerator   string
	Strategy      string
	Precision     string
	Deterministic bool
	Devices       []int
}

func (b *Backend) Launch(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices := make([]int, b.cfg.Devices)
	for i := range devices {
		devices[i] = b.cfg.DeviceIndex + i
	}

	return &Session{
		ctx: Context{
			SessionID:     uuid.NewString(),
			Accelerator:   b.cfg.Accelerator,
			Strategy:      b.cfg.Strategy,
			Precision:     b.cfg.Precision,
			Deterministic: b.cfg.Deterministic,
			Devices:       devices,
		},
	}, nil
}

type Session struct {
	ctx    Context
	closed atomic.Bool
}

func (s *Session) Context() Context {
	return s.ctx
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.closed.Store(true)

	return nil
}

func (s *Session) check() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	return nil
}

func (s *Session) SetupModule(m ml.Model) (*Module, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	d, ok := m.(ml.Differentiable)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedModel, m)
	}

	if want := precisionDType(s.ctx.Precision); want != "" {
		for _, slot := range params.LayoutOf(m) {
			if slot.DType != want {
				return nil, fmt.Errorf("%w: slot %q is %s, precision %s", ErrPrecisionMismatch, slot.Name, slot.DType, s.ctx.Precision)
			}
		}
	}

	return &Module{session: s, model: d}, nil
}

func (s *Session) SetupOptimizer(opt ml.Optimizer) (*Optimizer, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	return &Optimizer{session: s, opt: opt}, nil
}

func (s *Session) SetupFeed(feed ml.Feed) (*Feed, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	return &Feed{session: s, feed: feed}, nil
}

func precisionDType(precision string) params.DType {
	switch precision {
	case Precision32:
		return params.Float32
	case Precision64:
		return params.Float64
	default:
		return ""
	}
}
