package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"usecase-deployments/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// deploymentRequest is the body of POST and PATCH /deployments.
type deploymentRequest struct {
	UseCaseName            string         `json:"UseCaseName" validate:"omitempty,max=255"`
	UseCaseDescription     string         `json:"UseCaseDescription" validate:"omitempty,max=1024"`
	UseCaseType            string         `json:"UseCaseType" validate:"omitempty,oneof=Chat Agent"`
	DefaultUserEmail       string         `json:"DefaultUserEmail" validate:"omitempty,email"`
	DeployUI               *bool          `json:"DeployUI"`
	ConversationMemoryType string         `json:"ConversationMemoryType" validate:"omitempty,oneof=DynamoDB"`
	KnowledgeBaseType      string         `json:"KnowledgeBaseType" validate:"omitempty,oneof=Kendra Bedrock"`
	KnowledgeBaseParams    map[string]any `json:"KnowledgeBaseParams"`
	ExistingKendraIndexID  string         `json:"ExistingKendraIndexId" validate:"omitempty,max=64"`
	NewKendraIndexName     string         `json:"NewKendraIndexName" validate:"omitempty,max=64"`
	LlmParams              *llmParams     `json:"LlmParams" validate:"required"`
}

type llmParams struct {
	ModelProvider  string                `json:"ModelProvider" validate:"required,oneof=HuggingFace OpenAI Anthropic Bedrock SageMaker"`
	APIKey         string                `json:"ApiKey"`
	ModelID        string                `json:"ModelId"`
	ModelParams    map[string]modelParam `json:"ModelParams" validate:"omitempty,dive"`
	PromptTemplate string                `json:"PromptTemplate"`
	Streaming      *bool                 `json:"Streaming"`
	Temperature    *float64              `json:"Temperature" validate:"omitempty,gte=0,lte=2"`
	RAGEnabled     *bool                 `json:"RAGEnabled"`
}

// modelParam is one provider-specific inference parameter. Values travel as
// strings and are converted by the deployed use case according to Type.
type modelParam struct {
	Value string `json:"Value" validate:"required"`
	Type  string `json:"Type" validate:"required,oneof=string integer float boolean list dictionary"`
}

func parseDeploymentRequest(body string, create bool) (deploymentRequest, error) {
	var req deploymentRequest
	if strings.TrimSpace(body) == "" {
		return req, errors.New("request body is required")
	}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return req, fmt.Errorf("request body is not valid JSON: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return req, validationMessage(err)
	}
	if create {
		if err := validate.Var(req.UseCaseName, "required"); err != nil {
			return req, errors.New("UseCaseName is required")
		}
		provider := domain.UseCase{ProviderName: req.LlmParams.ModelProvider}
		if provider.RequiresAPIKey() && strings.TrimSpace(req.LlmParams.APIKey) == "" {
			return req, fmt.Errorf("LlmParams.ApiKey is required for provider %s", req.LlmParams.ModelProvider)
		}
	}
	return req, nil
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed rule '%s=%s'", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed rule '%s'", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// toUseCase adapts a validated request. useCaseID is empty for creates, in
// which case a new id is generated and the type defaults to Chat. Updates keep
// an empty type so the deployed template is reused.
func (r deploymentRequest) toUseCase(useCaseID, userID, stackPrefix string) domain.UseCase {
	useCaseType := r.UseCaseType
	if useCaseID == "" {
		useCaseID = newUseCaseID()
		if useCaseType == "" {
			useCaseType = domain.UseCaseTypeChat
		}
	}
	uc := domain.UseCase{
		UseCaseID:     useCaseID,
		Name:          r.UseCaseName,
		Description:   r.UseCaseDescription,
		UserID:        userID,
		ProviderName:  r.LlmParams.ModelProvider,
		UseCaseType:   useCaseType,
		APIKey:        r.LlmParams.APIKey,
		CfnParameters: r.cfnParameters(),
		Configuration: r.configuration(),
	}
	uc.StackName = stackName(stackPrefix, uc)
	return uc
}

func (r deploymentRequest) cfnParameters() map[string]string {
	params := map[string]string{}
	if r.DefaultUserEmail != "" {
		params[domain.CfnParamDefaultUserEmail] = r.DefaultUserEmail
	}
	if r.DeployUI != nil {
		params[domain.CfnParamDeployUI] = yesNo(*r.DeployUI)
	}
	if r.LlmParams.RAGEnabled != nil {
		params[domain.CfnParamRAGEnabled] = strconv.FormatBool(*r.LlmParams.RAGEnabled)
	}
	if r.ExistingKendraIndexID != "" {
		params[domain.CfnParamExistingKendraIndexID] = r.ExistingKendraIndexID
	}
	if r.NewKendraIndexName != "" {
		params[domain.CfnParamNewKendraIndexName] = r.NewKendraIndexName
	}
	return params
}

// configuration builds the stored config document from the fields that were
// sent. The API key is never part of it.
func (r deploymentRequest) configuration() map[string]any {
	cfg := map[string]any{}
	if r.UseCaseName != "" {
		cfg["UseCaseName"] = r.UseCaseName
	}
	if r.ConversationMemoryType != "" {
		cfg["ConversationMemoryType"] = r.ConversationMemoryType
	}
	if r.KnowledgeBaseType != "" {
		cfg["KnowledgeBaseType"] = r.KnowledgeBaseType
	}
	if r.KnowledgeBaseParams != nil {
		cfg["KnowledgeBaseParams"] = domain.CloneConfig(r.KnowledgeBaseParams)
	}

	llm := map[string]any{"ModelProvider": r.LlmParams.ModelProvider}
	if r.LlmParams.ModelID != "" {
		llm["ModelId"] = r.LlmParams.ModelID
	}
	if r.LlmParams.ModelParams != nil {
		mp := make(map[string]any, len(r.LlmParams.ModelParams))
		for name, p := range r.LlmParams.ModelParams {
			mp[name] = map[string]any{"Value": p.Value, "Type": p.Type}
		}
		llm["ModelParams"] = mp
	}
	if r.LlmParams.PromptTemplate != "" {
		llm["PromptTemplate"] = r.LlmParams.PromptTemplate
	}
	if r.LlmParams.Streaming != nil {
		llm["Streaming"] = *r.LlmParams.Streaming
	}
	if r.LlmParams.Temperature != nil {
		llm["Temperature"] = *r.LlmParams.Temperature
	}
	if r.LlmParams.RAGEnabled != nil {
		llm["RAGEnabled"] = *r.LlmParams.RAGEnabled
	}
	cfg["LlmParams"] = llm
	return cfg
}

func stackName(prefix string, uc domain.UseCase) string {
	return prefix + "-" + uc.ShortID()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

var newUseCaseID = func() string {
	return uuid.NewString()
}
