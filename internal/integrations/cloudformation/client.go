package cloudformation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"

	"usecase-deployments/internal/domain"
)

const (
	outputWebConfigKey     = "WebConfigKey"
	outputCloudFrontWebURL = "CloudFrontWebUrl"

	createdViaTag = "deploymentPlatform"
)

var capabilities = []types.Capability{
	types.CapabilityCapabilityIam,
	types.CapabilityCapabilityNamedIam,
	types.CapabilityCapabilityAutoExpand,
}

// retainedParameters are shared by every deployment template and reset to
// their defaults on update unless they are resent.
var retainedParameters = []string{
	domain.CfnParamDefaultUserEmail,
	domain.CfnParamDeployUI,
	domain.CfnParamRAGEnabled,
	domain.CfnParamExistingKendraIndexID,
	domain.CfnParamNewKendraIndexName,
}

// cloudFormationAPI is the minimal CloudFormation interface required by Client.
type cloudFormationAPI interface {
	CreateStack(ctx context.Context, in *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, in *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, in *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
}

// TemplateLocation says where deployment templates are published.
type TemplateLocation struct {
	Bucket    string
	KeyPrefix string
}

// URL returns the S3 URL of the named template.
func (l TemplateLocation) URL(templateName string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s%s.template", l.Bucket, l.KeyPrefix, templateName)
}

// Client issues stack operations for use cases.
type Client struct {
	api       cloudFormationAPI
	templates TemplateLocation
	roleARN   string
}

type Option func(*Client)

// WithRoleARN makes CloudFormation assume roleARN for stack operations.
func WithRoleARN(roleARN string) Option {
	return func(c *Client) {
		c.roleARN = strings.TrimSpace(roleARN)
	}
}

func New(api cloudFormationAPI, templates TemplateLocation, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("cloudformation: api must not be nil")
	}
	if strings.TrimSpace(templates.Bucket) == "" {
		return nil, errors.New("cloudformation: template bucket must not be empty")
	}
	c := &Client{api: api, templates: templates}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) role() *string {
	if c.roleARN == "" {
		return nil
	}
	return aws.String(c.roleARN)
}

// CreateStack submits the use case's stack and returns the assigned stack id.
func (c *Client) CreateStack(ctx context.Context, uc domain.UseCase) (string, error) {
	if uc.StackName == "" {
		return "", errors.New("cloudformation: CreateStack: stack name is required")
	}
	out, err := c.api.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(uc.StackName),
		TemplateURL:  aws.String(c.templates.URL(uc.TemplateName())),
		Parameters:   stackParameters(uc.CfnParameters),
		Capabilities: capabilities,
		RoleARN:      c.role(),
		Tags: []types.Tag{
			{Key: aws.String("createdVia"), Value: aws.String(createdViaTag)},
			{Key: aws.String("userId"), Value: aws.String(uc.UserID)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("cloudformation: CreateStack: %w", err)
	}
	if out == nil || out.StackId == nil {
		return "", errors.New("cloudformation: CreateStack: response missing stack id")
	}
	return *out.StackId, nil
}

// UpdateStack resubmits the stack with the use case's current parameters.
// Without a use case type the deployed template is kept, and retained
// parameters the use case does not set keep their deployed values.
func (c *Client) UpdateStack(ctx context.Context, uc domain.UseCase) error {
	id := uc.StackIdentifier()
	if id == "" {
		return errors.New("cloudformation: UpdateStack: stack id or name is required")
	}
	in := &cloudformation.UpdateStackInput{
		StackName:    aws.String(id),
		Parameters:   updateParameters(uc.CfnParameters),
		Capabilities: capabilities,
		RoleARN:      c.role(),
	}
	if uc.UseCaseType == "" {
		in.UsePreviousTemplate = aws.Bool(true)
	} else {
		in.TemplateURL = aws.String(c.templates.URL(uc.TemplateName()))
	}
	_, err := c.api.UpdateStack(ctx, in)
	if err != nil {
		return fmt.Errorf("cloudformation: UpdateStack: %w", err)
	}
	return nil
}

// DeleteStack deletes the use case's stack. A stack that does not exist is
// treated as deleted.
func (c *Client) DeleteStack(ctx context.Context, uc domain.UseCase) error {
	id := uc.StackIdentifier()
	if id == "" {
		return errors.New("cloudformation: DeleteStack: stack id or name is required")
	}
	_, err := c.api.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(id),
		RoleARN:   c.role(),
	})
	if err != nil && !IsStackNotFound(err) {
		return fmt.Errorf("cloudformation: DeleteStack: %w", err)
	}
	return nil
}

// GetStackDetails describes a stack and flattens its parameters and outputs.
func (c *Client) GetStackDetails(ctx context.Context, info domain.StackInfo) (domain.StackDetails, error) {
	if info.StackID == "" {
		return domain.StackDetails{}, errors.New("cloudformation: GetStackDetails: stack id is required")
	}
	out, err := c.api.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(info.StackID),
	})
	if err != nil {
		return domain.StackDetails{}, fmt.Errorf("cloudformation: GetStackDetails %q: %w", info.StackID, err)
	}
	if out == nil || len(out.Stacks) == 0 {
		return domain.StackDetails{}, fmt.Errorf("cloudformation: GetStackDetails %q: no stack returned", info.StackID)
	}
	return flattenStack(out.Stacks[0]), nil
}

func flattenStack(stack types.Stack) domain.StackDetails {
	details := domain.StackDetails{Status: string(stack.StackStatus)}
	for _, p := range stack.Parameters {
		switch aws.ToString(p.ParameterKey) {
		case domain.CfnParamChatConfigSSMParameterName:
			details.ChatConfigSSMParameterName = aws.ToString(p.ParameterValue)
		case domain.CfnParamProviderAPIKeySecret:
			details.ProviderAPIKeySecret = aws.ToString(p.ParameterValue)
		}
	}
	// Outputs win over parameters for the same attribute.
	for _, o := range stack.Outputs {
		v := aws.ToString(o.OutputValue)
		switch aws.ToString(o.OutputKey) {
		case outputWebConfigKey:
			details.WebConfigKey = v
		case outputCloudFrontWebURL:
			details.CloudFrontWebURL = v
		case domain.CfnParamChatConfigSSMParameterName:
			details.ChatConfigSSMParameterName = v
		case domain.CfnParamProviderAPIKeySecret:
			details.ProviderAPIKeySecret = v
		}
	}
	return details
}

func stackParameters(params map[string]string) []types.Parameter {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Parameter, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(params[k]),
		})
	}
	return out
}

// updateParameters is stackParameters plus a previous-value entry for every
// retained parameter missing from params.
func updateParameters(params map[string]string) []types.Parameter {
	out := stackParameters(params)
	for _, k := range retainedParameters {
		if _, ok := params[k]; ok {
			continue
		}
		out = append(out, types.Parameter{
			ParameterKey:     aws.String(k),
			UsePreviousValue: aws.Bool(true),
		})
	}
	return out
}

// IsStackNotFound reports whether err says the stack does not exist.
// CloudFormation reports this as a ValidationError, so the code is checked
// before the message.
func IsStackNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "StackNotFoundException":
		return true
	case "ValidationError":
		return strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}
