// Package retry runs external calls with exponential backoff and a timeout per
// attempt. Failures are reported in the returned Outcome and never panic past
// the caller.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
)

// Recorder receives one observation per finished Run.
type Recorder interface {
	RecordRetry(operation, outcome string)
}

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Jitter is the backoff randomization factor (0 disables it).
	Jitter float64
	// CallTimeout bounds every attempt independently. Zero means no bound.
	CallTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		CallTimeout: 15 * time.Second,
	}
}

type Outcome struct {
	Attempts int
	Err      error
	Elapsed  time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

type Engine struct {
	policy   Policy
	logger   logrus.FieldLogger
	recorder Recorder
}

func NewEngine(policy Policy, logger logrus.FieldLogger, recorder Recorder) *Engine {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{policy: policy, logger: logger, recorder: recorder}
}

func (e *Engine) Policy() Policy { return e.policy }

// WithAttempts returns a copy of the engine with a different attempt cap.
func (e *Engine) WithAttempts(n int) *Engine {
	p := e.policy
	p.MaxAttempts = n
	return NewEngine(p, e.logger, e.recorder)
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts the
// attempt cap or ctx is done. Delay before attempt n+1 is BaseDelay*2^(n-1).
func (e *Engine) Do(ctx context.Context, name string, op func(ctx context.Context) error) (out Outcome) {
	start := time.Now()
	log := e.logger.WithField("operation", name)

	defer func() {
		if r := recover(); r != nil {
			out.Err = entity.NewFatal(name, fmt.Errorf("panic: %v", r))
		}
		out.Elapsed = time.Since(start)
		e.record(name, out)
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = e.policy.Jitter
	b.MaxInterval = e.policy.BaseDelay << 10
	b.MaxElapsedTime = 0

	var bo backoff.BackOff = backoff.WithMaxRetries(b, uint64(e.policy.MaxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	attempt := func() error {
		out.Attempts++
		err := e.call(ctx, op)
		if err == nil {
			return nil
		}
		if !entity.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithFields(logrus.Fields{
			"attempt": out.Attempts,
			"wait":    wait.String(),
		}).WithError(err).Warn("transient failure, retrying")
	}

	out.Err = backoff.RetryNotify(attempt, bo, notify)
	if out.Err != nil {
		log.WithFields(logrus.Fields{
			"attempts": out.Attempts,
		}).WithError(out.Err).Error("giving up")
	}
	return out
}

func (e *Engine) call(ctx context.Context, op func(ctx context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	callCtx := ctx
	if e.policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.policy.CallTimeout)
		defer cancel()
	}
	err = op(callCtx)
	// a per-attempt deadline is transient; the caller's own cancellation is not
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return entity.NewTransient("attempt timeout", err)
	}
	return err
}

func (e *Engine) record(name string, out Outcome) {
	if e.recorder == nil {
		return
	}
	switch {
	case out.Err == nil && out.Attempts <= 1:
		e.recorder.RecordRetry(name, "first_try")
	case out.Err == nil:
		e.recorder.RecordRetry(name, "recovered")
	default:
		e.recorder.RecordRetry(name, "exhausted")
	}
}

// Run is Do for operations that produce a value.
func Run[T any](ctx context.Context, e *Engine, name string, op func(ctx context.Context) (T, error)) (T, Outcome) {
	var result T
	out := e.Do(ctx, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, out
}
