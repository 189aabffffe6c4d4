package usecase

import (
	"context"
	"errors"
	"log/slog"

	"usecase-deployments/internal/domain"
	"usecase-deployments/internal/integrations/paramstore"
)

// CreateCommand deploys a new use case: stack, record, config, then secret.
type CreateCommand struct {
	deps     Dependencies
	rollback bool
}

type CreateOption func(*CreateCommand)

// WithRollback undoes the completed steps when a step after stack creation fails.
func WithRollback(enabled bool) CreateOption {
	return func(c *CreateCommand) {
		c.rollback = enabled
	}
}

func NewCreateCommand(d Dependencies, opts ...CreateOption) (*CreateCommand, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	c := &CreateCommand{deps: d}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Execute returns StatusFailed with a nil error when the stack could not be
// created. Failures after that return StatusFailed with an *Error.
func (c *CreateCommand) Execute(ctx context.Context, in domain.UseCase) (domain.Status, error) {
	uc := in.Clone()
	c.deps.assignParameters(&uc)
	logger := c.deps.log(uc)

	stackID, err := c.deps.Stacks.CreateStack(ctx, uc)
	if err != nil {
		logger.Error("stack creation failed", "err", err)
		return domain.StatusFailed, nil
	}
	uc.StackID = stackID
	logger = c.deps.log(uc)

	var undo compensations
	undo.add("delete stack", func(ctx context.Context) error { return c.deps.Stacks.DeleteStack(ctx, uc) })

	if err := c.deps.Records.CreateUseCaseRecord(ctx, uc); err != nil {
		return c.fail(ctx, logger, &undo, newError(ErrorInternal, "dynamodb_record_create_error", err))
	}
	undo.add("delete record", func(ctx context.Context) error {
		_, err := c.deps.Records.DeleteUseCaseRecord(ctx, uc)
		return err
	})

	if err := c.deps.Configs.CreateUseCaseConfig(ctx, uc); err != nil {
		return c.fail(ctx, logger, &undo, newError(ErrorInternal, "ssm_config_create_error", err))
	}
	undo.add("delete config", func(ctx context.Context) error { return c.deps.Configs.DeleteUseCaseConfig(ctx, uc) })

	if uc.RequiresAPIKey() {
		if err := c.deps.Secrets.CreateSecret(ctx, uc); err != nil {
			return c.fail(ctx, logger, &undo, newError(ErrorInternal, "secret_create_error", err))
		}
	}

	logger.Info("use case created")
	return domain.StatusSuccess, nil
}

func (c *CreateCommand) fail(ctx context.Context, logger *slog.Logger, undo *compensations, e *Error) (domain.Status, error) {
	logger.Error("use case creation failed after stack creation", "reason", e.Reason, "err", e.Err)
	if c.rollback {
		e.Outcome = undo.rollback(ctx, logger)
		logger.Warn("use case creation rolled back", "outcome", e.Outcome)
	}
	return domain.StatusFailed, e
}

// UpdateCommand updates the stack, then cuts the record and config over to a
// newly named config parameter.
type UpdateCommand struct {
	deps Dependencies
}

func NewUpdateCommand(d Dependencies) (*UpdateCommand, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &UpdateCommand{deps: d}, nil
}

func (c *UpdateCommand) Execute(ctx context.Context, in domain.UseCase) (domain.Status, error) {
	uc := in.Clone()
	c.deps.assignParameters(&uc)
	logger := c.deps.log(uc)

	if err := c.deps.Stacks.UpdateStack(ctx, uc); err != nil {
		logger.Error("stack update failed", "err", err)
		return domain.StatusFailed, nil
	}

	record, err := c.deps.Records.GetUseCaseRecord(ctx, uc)
	if err != nil {
		if errors.Is(err, domain.ErrUseCaseNotFound) {
			return domain.StatusFailed, newError(ErrorNotFound, "use_case_not_found", err)
		}
		return domain.StatusFailed, newError(ErrorInternal, "dynamodb_record_read_error", err)
	}
	if uc.StackID == "" {
		uc.StackID = record.StackID
	}

	if err := c.deps.Records.UpdateUseCaseRecord(ctx, uc); err != nil {
		return domain.StatusFailed, newError(ErrorInternal, "dynamodb_record_update_error", err)
	}

	if err := c.deps.Configs.UpdateUseCaseConfig(ctx, uc, record.SSMParameterKey); err != nil {
		var cleanup *paramstore.CleanupError
		if !errors.As(err, &cleanup) {
			return domain.StatusFailed, newError(ErrorInternal, "ssm_config_update_error", err)
		}
		// The record already points at the new parameter; the old one is an orphan.
		logger.Warn("old config parameter was not deleted", "parameter", cleanup.OldName, "err", cleanup.Err)
	}

	if uc.RequiresAPIKey() && uc.APIKey != "" {
		if err := c.deps.Secrets.UpdateSecret(ctx, uc); err != nil {
			return domain.StatusFailed, newError(ErrorInternal, "secret_update_error", err)
		}
	}

	logger.Info("use case updated")
	return domain.StatusSuccess, nil
}

// DeleteCommand deletes the stack and soft-deletes the record. The config
// parameter is kept until the record expires.
type DeleteCommand struct {
	deps Dependencies
}

func NewDeleteCommand(d Dependencies) (*DeleteCommand, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &DeleteCommand{deps: d}, nil
}

func (c *DeleteCommand) Execute(ctx context.Context, in domain.UseCase) (domain.Status, error) {
	uc := in.Clone()
	logger := c.deps.log(uc)

	if err := c.deps.Stacks.DeleteStack(ctx, uc); err != nil {
		logger.Error("stack deletion failed", "err", err)
		return domain.StatusFailed, nil
	}

	if err := c.deps.Records.MarkUseCaseRecordForDeletion(ctx, uc); err != nil {
		return domain.StatusFailed, newError(ErrorInternal, "dynamodb_record_mark_error", err)
	}

	if secretMayExist(uc) {
		if err := c.deps.Secrets.DeleteSecret(ctx, uc); err != nil {
			return domain.StatusFailed, newError(ErrorInternal, "secret_delete_error", err)
		}
	}

	logger.Info("use case marked for deletion")
	return domain.StatusSuccess, nil
}

// PermanentlyDeleteCommand removes the stack, record, config and secret.
type PermanentlyDeleteCommand struct {
	deps Dependencies
}

func NewPermanentlyDeleteCommand(d Dependencies) (*PermanentlyDeleteCommand, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &PermanentlyDeleteCommand{deps: d}, nil
}

func (c *PermanentlyDeleteCommand) Execute(ctx context.Context, in domain.UseCase) (domain.Status, error) {
	uc := in.Clone()
	logger := c.deps.log(uc)

	if err := c.deps.Stacks.DeleteStack(ctx, uc); err != nil {
		logger.Error("stack deletion failed", "err", err)
		return domain.StatusFailed, nil
	}

	record, err := c.deps.Records.DeleteUseCaseRecord(ctx, uc)
	if err != nil {
		return domain.StatusFailed, newError(ErrorInternal, "dynamodb_record_delete_error", err)
	}

	if record != nil && record.SSMParameterKey != "" {
		if uc.CfnParameters == nil {
			uc.CfnParameters = map[string]string{}
		}
		uc.CfnParameters[domain.CfnParamChatConfigSSMParameterName] = record.SSMParameterKey
		if err := c.deps.Configs.DeleteUseCaseConfig(ctx, uc); err != nil {
			return domain.StatusFailed, newError(ErrorInternal, "ssm_config_delete_error", err)
		}
	} else {
		logger.Warn("no record found, config parameter left in place")
	}

	if secretMayExist(uc) {
		if err := c.deps.Secrets.DeleteSecret(ctx, uc); err != nil {
			return domain.StatusFailed, newError(ErrorInternal, "secret_delete_error", err)
		}
	}

	logger.Info("use case permanently deleted")
	return domain.StatusSuccess, nil
}

// secretMayExist is true for credential providers, and for deletes that did
// not say which provider the use case had.
func secretMayExist(uc domain.UseCase) bool {
	return uc.ProviderName == "" || uc.RequiresAPIKey()
}
