package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"

	"github.com/felixgeelhaar/pyquest/internal/domain"
)

// Resilient wraps a Runtime with a circuit breaker over transport failures
// and a bulkhead that admits a single execution at a time.
//
// Failed executions are never retried.
type Resilient struct {
	inner          Runtime
	circuitBreaker circuitbreaker.CircuitBreaker[*Result]
	bulkhead       bulkhead.Bulkhead[*Result]
	logger         *slog.Logger
}

// ResilientConfig holds configuration for the wrapper
type ResilientConfig struct {
	// FailureThreshold trips the breaker after this many consecutive
	// backend failures (default: 3)
	FailureThreshold int

	// OpenTimeout is how long the breaker stays open (default: 30s)
	OpenTimeout time.Duration

	// QueueTimeout bounds the wait for the single execution slot (default: 0, reject immediately)
	QueueTimeout time.Duration

	Logger *slog.Logger
}

// NewResilient wraps inner with fortify patterns
func NewResilient(inner Runtime, cfg ResilientConfig) *Resilient {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Resilient{inner: inner, logger: cfg.Logger}

	threshold := cfg.FailureThreshold
	r.circuitBreaker = circuitbreaker.New[*Result](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= threshold
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			r.logger.Warn("runtime circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	})

	maxQueue := 0
	if cfg.QueueTimeout > 0 {
		maxQueue = 4
	}
	r.bulkhead = bulkhead.New[*Result](bulkhead.Config{
		MaxConcurrent: 1,
		MaxQueue:      maxQueue,
		QueueTimeout:  cfg.QueueTimeout,
	})

	return r
}

// Run executes code through the breaker and bulkhead
func (r *Resilient) Run(ctx context.Context, code string) (*Result, error) {
	return r.execute(ctx, func(ctx context.Context) (*Result, error) {
		return r.inner.Run(ctx, code)
	})
}

// Continue resumes a suspended execution through the breaker and bulkhead
func (r *Resilient) Continue(ctx context.Context, input string) (*Result, error) {
	return r.execute(ctx, func(ctx context.Context) (*Result, error) {
		return r.inner.Continue(ctx, input)
	})
}

// RunWithInput forwards to the wrapped runtime when it supports queued input
func (r *Resilient) RunWithInput(ctx context.Context, code string, inputs []string) (*Result, error) {
	ir, ok := r.inner.(InputRunner)
	if !ok {
		return r.Run(ctx, code)
	}
	return r.execute(ctx, func(ctx context.Context) (*Result, error) {
		return ir.RunWithInput(ctx, code, inputs)
	})
}

// IsReady delegates to the wrapped runtime
func (r *Resilient) IsReady() bool {
	return r.inner.IsReady()
}

func (r *Resilient) execute(ctx context.Context, op func(context.Context) (*Result, error)) (*Result, error) {
	var admitted, invoked bool
	var protocolErr error

	result, err := r.bulkhead.Execute(ctx, func(ctx context.Context) (*Result, error) {
		admitted = true
		return r.circuitBreaker.Execute(ctx, func(ctx context.Context) (*Result, error) {
			invoked = true
			res, err := op(ctx)
			// ErrNotWaiting is a caller error, not a backend failure.
			if errors.Is(err, domain.ErrNotWaiting) {
				protocolErr = err
				return nil, nil
			}
			return res, err
		})
	})

	switch {
	case protocolErr != nil:
		return nil, protocolErr
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case !admitted:
		return nil, fmt.Errorf("%w: %v", domain.ErrRuntimeBusy, err)
	case !invoked:
		return nil, fmt.Errorf("%w: %v", domain.ErrRuntimeNotReady, err)
	default:
		return nil, err
	}
}

// InputRunner is implemented by runtimes that accept pre-queued input
type InputRunner interface {
	RunWithInput(ctx context.Context, code string, inputs []string) (*Result, error)
}

var (
	_ Runtime     = (*Resilient)(nil)
	_ InputRunner = (*Resilient)(nil)
	_ InputRunner = (*Interpreter)(nil)
)
