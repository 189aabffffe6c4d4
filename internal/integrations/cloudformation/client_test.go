package cloudformation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"usecase-deployments/internal/domain"
)

type fakeCFN struct {
	createOut    *cloudformation.CreateStackOutput
	createErr    error
	updateErr    error
	deleteErr    error
	describeOut  *cloudformation.DescribeStacksOutput
	describeErr  error
	lastCreate   *cloudformation.CreateStackInput
	lastUpdate   *cloudformation.UpdateStackInput
	lastDelete   *cloudformation.DeleteStackInput
	lastDescribe *cloudformation.DescribeStacksInput
}

func (f *fakeCFN) CreateStack(_ context.Context, in *cloudformation.CreateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	f.lastCreate = in
	return f.createOut, f.createErr
}

func (f *fakeCFN) UpdateStack(_ context.Context, in *cloudformation.UpdateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	f.lastUpdate = in
	return &cloudformation.UpdateStackOutput{}, f.updateErr
}

func (f *fakeCFN) DeleteStack(_ context.Context, in *cloudformation.DeleteStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	f.lastDelete = in
	return &cloudformation.DeleteStackOutput{}, f.deleteErr
}

func (f *fakeCFN) DescribeStacks(_ context.Context, in *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	f.lastDescribe = in
	return f.describeOut, f.describeErr
}

var testTemplates = TemplateLocation{Bucket: "artifacts", KeyPrefix: "v1/"}

func mustNewClient(t *testing.T, api *fakeCFN, opts ...Option) *Client {
	t.Helper()
	c, err := New(api, testTemplates, opts...)
	require.NoError(t, err)
	return c
}

func testUseCase() domain.UseCase {
	return domain.UseCase{
		UseCaseID:    "11111111-2222",
		StackName:    "UseCase-11111111",
		ProviderName: domain.ProviderHuggingFace,
		UseCaseType:  domain.UseCaseTypeChat,
		UserID:       "user-1",
		CfnParameters: map[string]string{
			domain.CfnParamRAGEnabled:                 "true",
			domain.CfnParamChatConfigSSMParameterName: "/config/11111111/v1",
		},
	}
}

func TestCreateStack_HappyPath(t *testing.T) {
	api := &fakeCFN{createOut: &cloudformation.CreateStackOutput{StackId: aws.String("arn:stack/1")}}
	c := mustNewClient(t, api, WithRoleARN("arn:role/deploy"))

	id, err := c.CreateStack(context.Background(), testUseCase())
	require.NoError(t, err)
	require.Equal(t, "arn:stack/1", id)

	in := api.lastCreate
	require.Equal(t, "UseCase-11111111", *in.StackName)
	require.Equal(t, "https://artifacts.s3.amazonaws.com/v1/HuggingFaceChat.template", *in.TemplateURL)
	require.Equal(t, "arn:role/deploy", *in.RoleARN)
	require.Len(t, in.Parameters, 2)
	require.Equal(t, domain.CfnParamChatConfigSSMParameterName, *in.Parameters[0].ParameterKey)
	require.Equal(t, domain.CfnParamRAGEnabled, *in.Parameters[1].ParameterKey)
	require.ElementsMatch(t, capabilities, in.Capabilities)
}

func TestCreateStack_NoRoleByDefault(t *testing.T) {
	api := &fakeCFN{createOut: &cloudformation.CreateStackOutput{StackId: aws.String("arn:stack/1")}}
	c := mustNewClient(t, api)
	_, err := c.CreateStack(context.Background(), testUseCase())
	require.NoError(t, err)
	require.Nil(t, api.lastCreate.RoleARN)
}

func TestCreateStack_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeCFN{createErr: errors.New("AlreadyExistsException")})
	_, err := c.CreateStack(context.Background(), testUseCase())
	require.ErrorContains(t, err, "AlreadyExistsException")

	c = mustNewClient(t, &fakeCFN{createOut: &cloudformation.CreateStackOutput{}})
	_, err = c.CreateStack(context.Background(), testUseCase())
	require.ErrorContains(t, err, "missing stack id")

	uc := testUseCase()
	uc.StackName = ""
	_, err = c.CreateStack(context.Background(), uc)
	require.ErrorContains(t, err, "stack name is required")
}

func TestUpdateStack_UsesStackIDWhenKnown(t *testing.T) {
	api := &fakeCFN{}
	c := mustNewClient(t, api)
	uc := testUseCase()
	uc.StackID = "arn:stack/1"
	require.NoError(t, c.UpdateStack(context.Background(), uc))
	require.Equal(t, "arn:stack/1", *api.lastUpdate.StackName)

	uc.StackID = ""
	require.NoError(t, c.UpdateStack(context.Background(), uc))
	require.Equal(t, "UseCase-11111111", *api.lastUpdate.StackName)
}

func TestUpdateStack_KeepsParametersThatWereNotSent(t *testing.T) {
	api := &fakeCFN{}
	c := mustNewClient(t, api)
	uc := testUseCase()
	uc.CfnParameters = map[string]string{
		domain.CfnParamChatConfigSSMParameterName: "/config/11111111/v2",
		domain.CfnParamDeployUI:                   "No",
	}
	require.NoError(t, c.UpdateStack(context.Background(), uc))

	sent := map[string]types.Parameter{}
	for _, p := range api.lastUpdate.Parameters {
		sent[aws.ToString(p.ParameterKey)] = p
	}
	require.Len(t, sent, 6)
	require.Equal(t, "/config/11111111/v2", aws.ToString(sent[domain.CfnParamChatConfigSSMParameterName].ParameterValue))
	require.Equal(t, "No", aws.ToString(sent[domain.CfnParamDeployUI].ParameterValue))
	require.Nil(t, sent[domain.CfnParamDeployUI].UsePreviousValue)
	for _, k := range []string{
		domain.CfnParamDefaultUserEmail,
		domain.CfnParamRAGEnabled,
		domain.CfnParamExistingKendraIndexID,
		domain.CfnParamNewKendraIndexName,
	} {
		require.True(t, aws.ToBool(sent[k].UsePreviousValue), k)
		require.Nil(t, sent[k].ParameterValue, k)
	}
}

func TestUpdateStack_TemplateSelection(t *testing.T) {
	api := &fakeCFN{}
	c := mustNewClient(t, api)
	uc := testUseCase()
	uc.UseCaseType = domain.UseCaseTypeAgent
	require.NoError(t, c.UpdateStack(context.Background(), uc))
	require.Equal(t, "https://artifacts.s3.amazonaws.com/v1/HuggingFaceAgent.template", aws.ToString(api.lastUpdate.TemplateURL))
	require.Nil(t, api.lastUpdate.UsePreviousTemplate)

	uc.UseCaseType = ""
	require.NoError(t, c.UpdateStack(context.Background(), uc))
	require.Nil(t, api.lastUpdate.TemplateURL)
	require.True(t, aws.ToBool(api.lastUpdate.UsePreviousTemplate))
}

func TestUpdateStack_Error(t *testing.T) {
	c := mustNewClient(t, &fakeCFN{updateErr: errors.New("boom")})
	err := c.UpdateStack(context.Background(), testUseCase())
	require.ErrorContains(t, err, "UpdateStack")
}

func TestDeleteStack_ToleratesMissingStack(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "validation error", err: &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id UseCase-11111111 does not exist"}},
		{name: "not found code", err: &smithy.GenericAPIError{Code: "StackNotFoundException", Message: "gone"}},
		{name: "wrapped", err: fmt.Errorf("operation error: %w", &smithy.GenericAPIError{Code: "StackNotFoundException"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := mustNewClient(t, &fakeCFN{deleteErr: tc.err})
			require.NoError(t, c.DeleteStack(context.Background(), testUseCase()))
		})
	}
}

func TestDeleteStack_PropagatesOtherErrors(t *testing.T) {
	cases := []error{
		&smithy.GenericAPIError{Code: "ValidationError", Message: "Role is invalid"},
		errors.New("Stack does not exist"),
	}
	for _, e := range cases {
		c := mustNewClient(t, &fakeCFN{deleteErr: e})
		require.Error(t, c.DeleteStack(context.Background(), testUseCase()))
	}
}

func TestDeleteStack_RequiresIdentifier(t *testing.T) {
	c := mustNewClient(t, &fakeCFN{})
	err := c.DeleteStack(context.Background(), domain.UseCase{})
	require.ErrorContains(t, err, "required")
}

func TestGetStackDetails_FlattensParametersAndOutputs(t *testing.T) {
	api := &fakeCFN{describeOut: &cloudformation.DescribeStacksOutput{Stacks: []types.Stack{{
		StackStatus: types.StackStatusCreateComplete,
		Parameters: []types.Parameter{
			{ParameterKey: aws.String(domain.CfnParamChatConfigSSMParameterName), ParameterValue: aws.String("/config/a")},
			{ParameterKey: aws.String(domain.CfnParamProviderAPIKeySecret), ParameterValue: aws.String("id/api-key")},
			{ParameterKey: aws.String("Other"), ParameterValue: aws.String("x")},
		},
		Outputs: []types.Output{
			{OutputKey: aws.String("WebConfigKey"), OutputValue: aws.String("/web/config")},
			{OutputKey: aws.String("CloudFrontWebUrl"), OutputValue: aws.String("https://d1.cloudfront.net")},
		},
	}}}}
	c := mustNewClient(t, api)

	details, err := c.GetStackDetails(context.Background(), domain.StackInfo{StackID: "arn:stack/1"})
	require.NoError(t, err)
	require.Equal(t, domain.StackDetails{
		Status:                     "CREATE_COMPLETE",
		WebConfigKey:               "/web/config",
		ChatConfigSSMParameterName: "/config/a",
		CloudFrontWebURL:           "https://d1.cloudfront.net",
		ProviderAPIKeySecret:       "id/api-key",
	}, details)
	require.Equal(t, "arn:stack/1", *api.lastDescribe.StackName)
}

func TestGetStackDetails_AbsentOptionalFields(t *testing.T) {
	api := &fakeCFN{describeOut: &cloudformation.DescribeStacksOutput{Stacks: []types.Stack{{
		StackStatus: types.StackStatusDeleteComplete,
	}}}}
	c := mustNewClient(t, api)
	details, err := c.GetStackDetails(context.Background(), domain.StackInfo{StackID: "arn:stack/1"})
	require.NoError(t, err)
	require.Equal(t, domain.StackDetails{Status: "DELETE_COMPLETE"}, details)
}

func TestGetStackDetails_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeCFN{describeErr: errors.New("throttled")})
	_, err := c.GetStackDetails(context.Background(), domain.StackInfo{StackID: "arn:stack/1"})
	require.ErrorContains(t, err, "throttled")

	c = mustNewClient(t, &fakeCFN{describeOut: &cloudformation.DescribeStacksOutput{}})
	_, err = c.GetStackDetails(context.Background(), domain.StackInfo{StackID: "arn:stack/1"})
	require.ErrorContains(t, err, "no stack returned")

	_, err = c.GetStackDetails(context.Background(), domain.StackInfo{})
	require.ErrorContains(t, err, "required")
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, testTemplates)
	require.ErrorContains(t, err, "must not be nil")

	_, err = New(&fakeCFN{}, TemplateLocation{})
	require.ErrorContains(t, err, "must not be empty")
}
