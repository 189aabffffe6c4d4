package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"usecase-deployments/internal/domain"
)

type StackManager interface {
	CreateStack(ctx context.Context, uc domain.UseCase) (string, error)
	UpdateStack(ctx context.Context, uc domain.UseCase) error
	DeleteStack(ctx context.Context, uc domain.UseCase) error
	GetStackDetails(ctx context.Context, info domain.StackInfo) (domain.StackDetails, error)
}

type RecordStore interface {
	CreateUseCaseRecord(ctx context.Context, uc domain.UseCase) error
	UpdateUseCaseRecord(ctx context.Context, uc domain.UseCase) error
	MarkUseCaseRecordForDeletion(ctx context.Context, uc domain.UseCase) error
	DeleteUseCaseRecord(ctx context.Context, uc domain.UseCase) (*domain.UseCaseRecord, error)
	GetUseCaseRecord(ctx context.Context, uc domain.UseCase) (domain.UseCaseRecord, error)
	GetAllCaseRecords(ctx context.Context, in domain.ListUseCasesInput) (domain.ScanResult, error)
}

type ConfigStore interface {
	CreateUseCaseConfig(ctx context.Context, uc domain.UseCase) error
	GetUseCaseConfigFromName(ctx context.Context, name string) (string, error)
	UpdateUseCaseConfig(ctx context.Context, uc domain.UseCase, oldName string) error
	DeleteUseCaseConfig(ctx context.Context, uc domain.UseCase) error
}

type SecretStore interface {
	SecretName(useCaseID string) string
	CreateSecret(ctx context.Context, uc domain.UseCase) error
	UpdateSecret(ctx context.Context, uc domain.UseCase) error
	DeleteSecret(ctx context.Context, uc domain.UseCase) error
}

// Dependencies are the collaborators shared by every command.
type Dependencies struct {
	Stacks       StackManager
	Records      RecordStore
	Configs      ConfigStore
	Secrets      SecretStore
	ConfigPrefix string
	Logger       *slog.Logger
}

func (d *Dependencies) validate() error {
	if d.Stacks == nil {
		return errors.New("usecase: stack manager must not be nil")
	}
	if d.Records == nil {
		return errors.New("usecase: record store must not be nil")
	}
	if d.Configs == nil {
		return errors.New("usecase: config store must not be nil")
	}
	if d.Secrets == nil {
		return errors.New("usecase: secret store must not be nil")
	}
	d.ConfigPrefix = strings.TrimRight(strings.TrimSpace(d.ConfigPrefix), "/")
	if d.ConfigPrefix == "" {
		return errors.New("usecase: config parameter prefix must not be empty")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return nil
}

// assignParameters gives the use case a fresh config parameter name and, for
// providers with stored credentials, points the stack at the secret.
func (d *Dependencies) assignParameters(uc *domain.UseCase) {
	if uc.CfnParameters == nil {
		uc.CfnParameters = map[string]string{}
	}
	uc.CfnParameters[domain.CfnParamChatConfigSSMParameterName] = d.ConfigPrefix + "/" + uc.ShortID() + "/" + newUUID()
	uc.CfnParameters[domain.CfnParamUseCaseUUID] = uc.UseCaseID
	if uc.RequiresAPIKey() {
		uc.CfnParameters[domain.CfnParamProviderAPIKeySecret] = d.Secrets.SecretName(uc.UseCaseID)
	}
}

func (d *Dependencies) log(uc domain.UseCase) *slog.Logger {
	return d.Logger.With("use_case_id", uc.UseCaseID, "stack", uc.StackIdentifier())
}

var newUUID = func() string {
	return uuid.NewString()
}
