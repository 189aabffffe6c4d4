package usecase

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"usecase-deployments/internal/domain"
)

const defaultListConcurrency = 8

// Config fields copied onto each listed deployment.
const (
	configKeyConversationMemoryType = "ConversationMemoryType"
	configKeyKnowledgeBaseType      = "KnowledgeBaseType"
	configKeyKnowledgeBaseParams    = "KnowledgeBaseParams"
	configKeyLlmParams              = "LlmParams"
)

// ListCommand scans one page of records and enriches each with live stack
// details and its stored config.
type ListCommand struct {
	deps        Dependencies
	concurrency int
}

type ListOption func(*ListCommand)

// WithConcurrency bounds the number of records enriched at once.
func WithConcurrency(n int) ListOption {
	return func(c *ListCommand) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func NewListCommand(d Dependencies, opts ...ListOption) (*ListCommand, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	c := &ListCommand{deps: d, concurrency: defaultListConcurrency}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Execute fails when the scan or any stack describe fails. Config lookups are
// best effort: a deployment whose config cannot be read is returned without it.
func (c *ListCommand) Execute(ctx context.Context, in domain.ListUseCasesInput) (domain.ListUseCasesOutput, error) {
	page, err := c.deps.Records.GetAllCaseRecords(ctx, in)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCursor) {
			return domain.ListUseCasesOutput{}, newError(ErrorInvalidInput, "invalid_exclusive_start_key", err)
		}
		return domain.ListUseCasesOutput{}, newError(ErrorInternal, "dynamodb_scan_error", err)
	}

	deployments := make([]domain.Deployment, len(page.Records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, rec := range page.Records {
		g.Go(func() error {
			d, err := c.enrich(gctx, rec)
			if err != nil {
				return err
			}
			deployments[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ListUseCasesOutput{}, newError(ErrorInternal, "cloudformation_describe_error", err)
	}

	return domain.ListUseCasesOutput{
		Deployments:      deployments,
		ScannedCount:     page.ScannedCount,
		LastEvaluatedKey: page.LastEvaluatedKey,
	}, nil
}

func (c *ListCommand) enrich(ctx context.Context, rec domain.UseCaseRecord) (domain.Deployment, error) {
	d := domain.Deployment{
		UseCaseID:       rec.UseCaseID,
		Name:            rec.Name,
		Description:     rec.Description,
		StackID:         rec.StackID,
		SSMParameterKey: rec.SSMParameterKey,
		CreatedBy:       rec.CreatedBy,
		CreatedDate:     rec.CreatedDate,
		UpdatedDate:     rec.UpdatedDate,
		DeletedDate:     rec.DeletedDate,
	}

	details, err := c.deps.Stacks.GetStackDetails(ctx, domain.StackInfo{StackID: rec.StackID})
	if err != nil {
		return domain.Deployment{}, err
	}
	d.Status = details.Status
	d.WebConfigKey = details.WebConfigKey
	d.ChatConfigSSMParameterName = details.ChatConfigSSMParameterName
	d.CloudFrontWebURL = details.CloudFrontWebURL
	d.ProviderAPIKeySecret = details.ProviderAPIKeySecret

	name := details.ChatConfigSSMParameterName
	if name == "" {
		name = rec.SSMParameterKey
	}
	if name == "" {
		return d, nil
	}

	logger := c.deps.Logger.With("use_case_id", rec.UseCaseID, "parameter", name)
	raw, err := c.deps.Configs.GetUseCaseConfigFromName(ctx, name)
	if err != nil {
		logger.Warn("config lookup failed, returning deployment without config", "err", err)
		return d, nil
	}
	cfg, err := domain.ParseConfig(raw)
	if err != nil {
		logger.Warn("stored config is not valid JSON", "err", err)
		return d, nil
	}
	d.ConversationMemoryType = cfg[configKeyConversationMemoryType]
	d.KnowledgeBaseType = cfg[configKeyKnowledgeBaseType]
	d.KnowledgeBaseParams = cfg[configKeyKnowledgeBaseParams]
	if llm, ok := cfg[configKeyLlmParams].(map[string]any); ok {
		d.LlmParams = llm
	}
	return d, nil
}
