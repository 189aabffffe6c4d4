package usecase

import (
	"context"
	"log/slog"
)

type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// compensations records the undo action for each completed step of a command.
type compensations struct {
	steps []compensation
}

func (c *compensations) add(step string, undo func(ctx context.Context) error) {
	c.steps = append(c.steps, compensation{step: step, undo: undo})
}

// rollback undoes completed steps newest first. Every step is attempted even
// after a failure; any failure means manual cleanup is needed.
func (c *compensations) rollback(ctx context.Context, logger *slog.Logger) Outcome {
	ctx = context.WithoutCancel(ctx)
	outcome := OutcomeRolledBack
	for i := len(c.steps) - 1; i >= 0; i-- {
		s := c.steps[i]
		if err := s.undo(ctx); err != nil {
			logger.Error("rollback step failed", "step", s.step, "err", err)
			outcome = OutcomeNeedsManualIntervention
			continue
		}
		logger.Info("rollback step completed", "step", s.step)
	}
	return outcome
}
