package usecase

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Transaction runs steps in order and, when one fails, runs the
// compensations of the steps that already succeeded in reverse order. It is
// a saga, not an atomic commit: a failed compensation leaves the stores
// diverged and is logged.
type Transaction struct {
	steps  []step
	logger logrus.FieldLogger
}

type step struct {
	name       string
	fn         func(context.Context) error
	compensate func(context.Context) error
}

func NewTransaction(logger logrus.FieldLogger) *Transaction {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Transaction{logger: logger}
}

// AddStep registers fn with an optional compensation.
func (t *Transaction) AddStep(name string, fn, compensate func(context.Context) error) {
	t.steps = append(t.steps, step{name: name, fn: fn, compensate: compensate})
}

func (t *Transaction) Execute(ctx context.Context) error {
	for i, s := range t.steps {
		if err := s.fn(ctx); err != nil {
			rolled := t.rollback(ctx, i)
			return fmt.Errorf("step '%s' failed: %w (rolled back %d steps)", s.name, err, rolled)
		}
	}
	return nil
}

func (t *Transaction) rollback(ctx context.Context, failedAt int) int {
	rolled := 0
	for i := failedAt - 1; i >= 0; i-- {
		s := t.steps[i]
		if s.compensate == nil {
			continue
		}
		if err := s.compensate(ctx); err != nil {
			t.logger.WithField("step", s.name).WithError(err).Error("⚠️ compensation failed, stores may have diverged")
			continue
		}
		rolled++
	}
	return rolled
}
