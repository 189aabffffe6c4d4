package domain

// Status is the coarse outcome of a lifecycle command.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// UseCaseRecord is one row of the use-cases table.
type UseCaseRecord struct {
	UseCaseID       string `dynamodbav:"UseCaseId" json:"UseCaseId"`
	StackID         string `dynamodbav:"StackId" json:"StackId"`
	Name            string `dynamodbav:"Name" json:"Name"`
	Description     string `dynamodbav:"Description,omitempty" json:"Description,omitempty"`
	SSMParameterKey string `dynamodbav:"SSMParameterKey" json:"SSMParameterKey"`
	CreatedBy       string `dynamodbav:"CreatedBy,omitempty" json:"CreatedBy,omitempty"`
	CreatedDate     string `dynamodbav:"CreatedDate,omitempty" json:"CreatedDate,omitempty"`
	UpdatedBy       string `dynamodbav:"UpdatedBy,omitempty" json:"UpdatedBy,omitempty"`
	UpdatedDate     string `dynamodbav:"UpdatedDate,omitempty" json:"UpdatedDate,omitempty"`
	DeletedBy       string `dynamodbav:"DeletedBy,omitempty" json:"DeletedBy,omitempty"`
	DeletedDate     string `dynamodbav:"DeletedDate,omitempty" json:"DeletedDate,omitempty"`
	TTL             int64  `dynamodbav:"TTL,omitempty" json:"TTL,omitempty"`
}

// MarkedForDeletion reports whether the row has been soft-deleted.
func (r UseCaseRecord) MarkedForDeletion() bool {
	return r.TTL > 0
}

// StackInfo identifies a stack to describe.
type StackInfo struct {
	StackID string
}

// StackDetails is the flattened view of a described stack. Any field may be
// empty when the stack version did not set it.
type StackDetails struct {
	Status                     string
	WebConfigKey               string
	ChatConfigSSMParameterName string
	CloudFrontWebURL           string
	ProviderAPIKeySecret       string
}

// ListUseCasesInput is the adapted list request.
type ListUseCasesInput struct {
	PageSize          int
	ExclusiveStartKey string
}

// ScanResult is one page of use case records.
type ScanResult struct {
	Records          []UseCaseRecord
	ScannedCount     int
	LastEvaluatedKey string
}

// Deployment is one entry of the list response.
type Deployment struct {
	UseCaseID                  string         `json:"UseCaseId"`
	Name                       string         `json:"Name"`
	Description                string         `json:"Description,omitempty"`
	StackID                    string         `json:"StackId"`
	SSMParameterKey            string         `json:"SSMParameterKey,omitempty"`
	CreatedBy                  string         `json:"CreatedBy,omitempty"`
	CreatedDate                string         `json:"CreatedDate,omitempty"`
	UpdatedDate                string         `json:"UpdatedDate,omitempty"`
	DeletedDate                string         `json:"DeletedDate,omitempty"`
	Status                     string         `json:"status,omitempty"`
	WebConfigKey               string         `json:"webConfigKey,omitempty"`
	ChatConfigSSMParameterName string         `json:"chatConfigSSMParameterName,omitempty"`
	CloudFrontWebURL           string         `json:"cloudFrontWebUrl,omitempty"`
	ProviderAPIKeySecret       string         `json:"providerApiKeySecret,omitempty"`
	ConversationMemoryType     any            `json:"ConversationMemoryType,omitempty"`
	KnowledgeBaseType          any            `json:"KnowledgeBaseType,omitempty"`
	KnowledgeBaseParams        any            `json:"KnowledgeBaseParams,omitempty"`
	LlmParams                  map[string]any `json:"LlmParams,omitempty"`
}

// ListUseCasesOutput is the assembled list response.
type ListUseCasesOutput struct {
	Deployments      []Deployment `json:"deployments"`
	ScannedCount     int          `json:"scannedCount"`
	LastEvaluatedKey string       `json:"lastEvaluatedKey,omitempty"`
}
