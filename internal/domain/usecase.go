package domain

import (
	"encoding/json"
	"strings"
)

// CloudFormation parameter names shared by the deployment templates.
const (
	CfnParamChatConfigSSMParameterName = "ChatConfigSSMParameterName"
	CfnParamProviderAPIKeySecret       = "ProviderApiKeySecret"
	CfnParamExistingKendraIndexID      = "ExistingKendraIndexId"
	CfnParamNewKendraIndexName         = "NewKendraIndexName"
	CfnParamRAGEnabled                 = "RAGEnabled"
	CfnParamDefaultUserEmail           = "DefaultUserEmail"
	CfnParamDeployUI                   = "DeployUI"
	CfnParamUseCaseUUID                = "UseCaseUUID"
)

// Providers supported by the deployment templates.
const (
	ProviderHuggingFace = "HuggingFace"
	ProviderOpenAI      = "OpenAI"
	ProviderAnthropic   = "Anthropic"
	ProviderBedrock     = "Bedrock"
	ProviderSageMaker   = "SageMaker"
)

// Use case categories.
const (
	UseCaseTypeChat  = "Chat"
	UseCaseTypeAgent = "Agent"
)

// providersWithAPIKey lists the providers whose credentials are kept in
// Secrets Manager. Everything else uses infrastructure-native model access.
var providersWithAPIKey = map[string]bool{
	ProviderHuggingFace: true,
	ProviderOpenAI:      true,
	ProviderAnthropic:   true,
}

const shortIDLength = 8

// UseCase is the value object a single lifecycle request operates on.
// Commands clone it before filling in CfnParameters and StackID.
type UseCase struct {
	UseCaseID     string
	Name          string
	Description   string
	CfnParameters map[string]string
	Configuration map[string]any
	UserID        string
	ProviderName  string
	UseCaseType   string
	StackID       string
	StackName     string
	APIKey        string
}

// ShortID returns the leading segment of the use case id used in resource names.
func (u UseCase) ShortID() string {
	if len(u.UseCaseID) <= shortIDLength {
		return u.UseCaseID
	}
	return u.UseCaseID[:shortIDLength]
}

// RequiresAPIKey reports whether the provider needs a stored credential.
func (u UseCase) RequiresAPIKey() bool {
	return providersWithAPIKey[u.ProviderName]
}

// StackIdentifier returns the stack id when known, otherwise the stack name.
func (u UseCase) StackIdentifier() string {
	if u.StackID != "" {
		return u.StackID
	}
	return u.StackName
}

// TemplateName names the deployment template for this provider and type.
func (u UseCase) TemplateName() string {
	return u.ProviderName + u.UseCaseType
}

// ConfigParameterName returns the SSM parameter currently assigned to the use case.
func (u UseCase) ConfigParameterName() string {
	return strings.TrimSpace(u.CfnParameters[CfnParamChatConfigSSMParameterName])
}

// Clone returns a deep copy so that commands can mutate their working value.
func (u UseCase) Clone() UseCase {
	out := u
	if u.CfnParameters != nil {
		out.CfnParameters = make(map[string]string, len(u.CfnParameters))
		for k, v := range u.CfnParameters {
			out.CfnParameters[k] = v
		}
	}
	out.Configuration = CloneConfig(u.Configuration)
	return out
}

// CloneConfig deep-copies a JSON-shaped configuration tree.
func CloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneConfig(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	default:
		return v
	}
}

// ParseConfig decodes a serialized configuration document.
func ParseConfig(raw string) (map[string]any, error) {
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	return cfg, nil
}
