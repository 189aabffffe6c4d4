package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"usecase-deployments/internal/domain"
)

// secretsManagerAPI is the minimal Secrets Manager interface required by Client.
type secretsManagerAPI interface {
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(ctx context.Context, in *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// Client stores provider API keys, one secret per use case.
type Client struct {
	api    secretsManagerAPI
	suffix string
}

func New(api secretsManagerAPI, suffix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	suffix = strings.Trim(strings.TrimSpace(suffix), "/")
	if suffix == "" {
		return nil, errors.New("secrets: suffix must not be empty")
	}
	return &Client{api: api, suffix: suffix}, nil
}

// SecretName returns the secret id for a use case.
func (c *Client) SecretName(useCaseID string) string {
	return useCaseID + "/" + c.suffix
}

func (c *Client) CreateSecret(ctx context.Context, uc domain.UseCase) error {
	if err := validate(uc); err != nil {
		return fmt.Errorf("secrets: CreateSecret: %w", err)
	}
	_, err := c.api.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(c.SecretName(uc.UseCaseID)),
		SecretString: aws.String(uc.APIKey),
	})
	if err != nil {
		return fmt.Errorf("secrets: CreateSecret: %w", err)
	}
	return nil
}

// UpdateSecret stores a new API key. A use case that switched to a credential
// provider has no secret yet, so a missing secret is created instead.
func (c *Client) UpdateSecret(ctx context.Context, uc domain.UseCase) error {
	if err := validate(uc); err != nil {
		return fmt.Errorf("secrets: UpdateSecret: %w", err)
	}
	_, err := c.api.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(c.SecretName(uc.UseCaseID)),
		SecretString: aws.String(uc.APIKey),
	})
	if isNotFound(err) {
		return c.CreateSecret(ctx, uc)
	}
	if err != nil {
		return fmt.Errorf("secrets: UpdateSecret: %w", err)
	}
	return nil
}

// DeleteSecret removes the secret immediately. A secret that is already gone
// counts as deleted.
func (c *Client) DeleteSecret(ctx context.Context, uc domain.UseCase) error {
	if uc.UseCaseID == "" {
		return errors.New("secrets: DeleteSecret: use case id is required")
	}
	_, err := c.api.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(c.SecretName(uc.UseCaseID)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("secrets: DeleteSecret: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}

func validate(uc domain.UseCase) error {
	if uc.UseCaseID == "" {
		return errors.New("use case id is required")
	}
	if uc.APIKey == "" {
		return errors.New("api key is required")
	}
	return nil
}
