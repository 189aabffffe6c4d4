package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"usecase-deployments/internal/domain"
)

// ParameterStore is the parameter access ConfigStore builds on. *Client satisfies it.
type ParameterStore interface {
	GetParameter(ctx context.Context, name string) (string, error)
	PutParameter(ctx context.Context, name, value string) error
	DeleteParameter(ctx context.Context, name string) error
}

// CleanupError reports that the merged config was written under the new name
// but the old parameter could not be removed.
type CleanupError struct {
	OldName string
	NewName string
	Err     error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("paramstore: new config %q committed, delete old config %q: %v", e.NewName, e.OldName, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// ConfigStore manages use case configuration documents in Parameter Store.
type ConfigStore struct {
	params ParameterStore
}

func NewConfigStore(params ParameterStore) (*ConfigStore, error) {
	if params == nil {
		return nil, errors.New("paramstore: parameter store must not be nil")
	}
	return &ConfigStore{params: params}, nil
}

// CreateUseCaseConfig writes the configuration under the use case's parameter name.
func (s *ConfigStore) CreateUseCaseConfig(ctx context.Context, uc domain.UseCase) error {
	name := uc.ConfigParameterName()
	if name == "" {
		return errors.New("paramstore: CreateUseCaseConfig: config parameter name is not set")
	}
	raw, err := marshalConfig(uc.Configuration)
	if err != nil {
		return fmt.Errorf("paramstore: CreateUseCaseConfig: %w", err)
	}
	if err := s.params.PutParameter(ctx, name, raw); err != nil {
		return fmt.Errorf("paramstore: CreateUseCaseConfig: %w", err)
	}
	return nil
}

// GetUseCaseConfig returns the raw configuration for the use case.
func (s *ConfigStore) GetUseCaseConfig(ctx context.Context, uc domain.UseCase) (string, error) {
	return s.GetUseCaseConfigFromName(ctx, uc.ConfigParameterName())
}

// GetUseCaseConfigFromName returns the raw configuration stored at name.
func (s *ConfigStore) GetUseCaseConfigFromName(ctx context.Context, name string) (string, error) {
	raw, err := s.params.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: GetUseCaseConfig: %w", err)
	}
	return raw, nil
}

// UpdateUseCaseConfig merges the incoming configuration over the one stored at
// oldName, writes the result under the use case's new parameter name and then
// removes oldName. A failed removal is returned as *CleanupError.
func (s *ConfigStore) UpdateUseCaseConfig(ctx context.Context, uc domain.UseCase, oldName string) error {
	newName := uc.ConfigParameterName()
	if newName == "" {
		return errors.New("paramstore: UpdateUseCaseConfig: config parameter name is not set")
	}
	if newName == oldName {
		return fmt.Errorf("paramstore: UpdateUseCaseConfig: new parameter name equals old name %q", oldName)
	}

	raw, err := s.params.GetParameter(ctx, oldName)
	if err != nil {
		return fmt.Errorf("paramstore: UpdateUseCaseConfig: read existing config: %w", err)
	}
	existing, err := domain.ParseConfig(raw)
	if err != nil {
		return fmt.Errorf("paramstore: UpdateUseCaseConfig: decode existing config: %w", err)
	}

	merged, err := marshalConfig(MergeConfigs(existing, uc.Configuration))
	if err != nil {
		return fmt.Errorf("paramstore: UpdateUseCaseConfig: %w", err)
	}
	if err := s.params.PutParameter(ctx, newName, merged); err != nil {
		return fmt.Errorf("paramstore: UpdateUseCaseConfig: write merged config: %w", err)
	}

	if err := s.params.DeleteParameter(ctx, oldName); err != nil {
		return &CleanupError{OldName: oldName, NewName: newName, Err: err}
	}
	return nil
}

// DeleteUseCaseConfig removes the use case's parameter. A parameter that is
// already gone counts as deleted.
func (s *ConfigStore) DeleteUseCaseConfig(ctx context.Context, uc domain.UseCase) error {
	name := uc.ConfigParameterName()
	if name == "" {
		return errors.New("paramstore: DeleteUseCaseConfig: config parameter name is not set")
	}
	if err := s.params.DeleteParameter(ctx, name); err != nil && !IsNotFound(err) {
		return fmt.Errorf("paramstore: DeleteUseCaseConfig: %w", err)
	}
	return nil
}

func marshalConfig(cfg map[string]any) (string, error) {
	if cfg == nil {
		cfg = map[string]any{}
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(b), nil
}
