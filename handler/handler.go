package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"usecase-deployments/internal/domain"
	"usecase-deployments/internal/usecase"
)

const (
	resourceDeployments = "/deployments"
	resourceDeployment  = "/deployments/{useCaseId}"

	headerCorrelationID     = "X-Correlation-Id"
	headerErrorType         = "x-amzn-ErrorType"
	headerExclusiveStartKey = "X-Exclusive-Start-Key"

	errorTypeValidation = "ValidationError"
	errorTypeNotFound   = "NotFound"
	errorTypeExecution  = "CustomExecutionError"

	defaultStackNamePrefix = "UseCase"
	maxPageSize            = 100
)

// Command runs one lifecycle operation for a single use case.
type Command interface {
	Execute(ctx context.Context, uc domain.UseCase) (domain.Status, error)
}

// Lister runs the list operation.
type Lister interface {
	Execute(ctx context.Context, in domain.ListUseCasesInput) (domain.ListUseCasesOutput, error)
}

// Commands are the operations the handler routes to.
type Commands struct {
	Create            Command
	Update            Command
	Delete            Command
	PermanentlyDelete Command
	List              Lister
}

type Handler struct {
	cmds        Commands
	stackPrefix string
	logger      *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithStackNamePrefix sets the prefix of generated stack names.
func WithStackNamePrefix(prefix string) Option {
	return func(h *Handler) {
		if p := strings.TrimSpace(prefix); p != "" {
			h.stackPrefix = p
		}
	}
}

func NewHandler(cmds Commands, opts ...Option) (*Handler, error) {
	if cmds.Create == nil || cmds.Update == nil || cmds.Delete == nil || cmds.PermanentlyDelete == nil || cmds.List == nil {
		return nil, errors.New("handler: all commands must be set")
	}
	h := &Handler{cmds: cmds, stackPrefix: defaultStackNamePrefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type statusResponse struct {
	Status    domain.Status `json:"status"`
	UseCaseID string        `json:"useCaseId,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handle serves API Gateway proxy requests for /deployments. It never returns
// a non-nil error; failures are rendered as HTTP responses.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	traceID := correlationID(event)
	logger := h.logger.With("trace_id", traceID, "method", event.HTTPMethod, "resource", event.Resource)

	switch {
	case event.Resource == resourceDeployments && event.HTTPMethod == http.MethodGet:
		return h.list(ctx, logger, traceID, event), nil
	case event.Resource == resourceDeployments && event.HTTPMethod == http.MethodPost:
		return h.create(ctx, logger, traceID, event), nil
	case event.Resource == resourceDeployment && event.HTTPMethod == http.MethodPatch:
		return h.update(ctx, logger, traceID, event), nil
	case event.Resource == resourceDeployment && event.HTTPMethod == http.MethodDelete:
		return h.delete(ctx, logger, traceID, event), nil
	default:
		logger.Warn("unsupported route")
		return errorReply(traceID, http.StatusNotFound, errorTypeNotFound, usecase.ErrorNotFound,
			fmt.Sprintf("unsupported route: %s %s", event.HTTPMethod, event.Resource)), nil
	}
}

func (h *Handler) list(ctx context.Context, logger *slog.Logger, traceID string, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	in := domain.ListUseCasesInput{
		PageSize:          maxPageSize,
		ExclusiveStartKey: header(event.Headers, headerExclusiveStartKey),
	}
	if raw := event.QueryStringParameters["pageSize"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil {
			err = validate.Var(n, fmt.Sprintf("min=1,max=%d", maxPageSize))
		}
		if err != nil {
			return errorReply(traceID, http.StatusBadRequest, errorTypeValidation, usecase.ErrorInvalidInput,
				fmt.Sprintf("pageSize must be an integer between 1 and %d", maxPageSize))
		}
		in.PageSize = n
	}

	out, err := h.cmds.List.Execute(ctx, in)
	if err != nil {
		return h.fail(logger, traceID, err)
	}
	logger.Info("listed deployments", "count", len(out.Deployments), "scanned", out.ScannedCount)
	return reply(traceID, http.StatusOK, out)
}

func (h *Handler) create(ctx context.Context, logger *slog.Logger, traceID string, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	req, err := parseDeploymentRequest(event.Body, true)
	if err != nil {
		return invalidInput(traceID, err)
	}
	uc := req.toUseCase("", userID(event), h.stackPrefix)
	logger = logger.With("use_case_id", uc.UseCaseID)

	status, err := h.cmds.Create.Execute(ctx, uc)
	if err != nil {
		return h.fail(logger, traceID, err)
	}
	logger.Info("create finished", "status", status)
	return reply(traceID, http.StatusOK, statusResponse{Status: status, UseCaseID: uc.UseCaseID})
}

func (h *Handler) update(ctx context.Context, logger *slog.Logger, traceID string, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	id, err := pathUseCaseID(event)
	if err != nil {
		return invalidInput(traceID, err)
	}
	req, err := parseDeploymentRequest(event.Body, false)
	if err != nil {
		return invalidInput(traceID, err)
	}
	uc := req.toUseCase(id, userID(event), h.stackPrefix)
	logger = logger.With("use_case_id", id)

	status, err := h.cmds.Update.Execute(ctx, uc)
	if err != nil {
		return h.fail(logger, traceID, err)
	}
	logger.Info("update finished", "status", status)
	return reply(traceID, http.StatusOK, statusResponse{Status: status})
}

func (h *Handler) delete(ctx context.Context, logger *slog.Logger, traceID string, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	id, err := pathUseCaseID(event)
	if err != nil {
		return invalidInput(traceID, err)
	}
	provider := event.QueryStringParameters["providerName"]
	if err := validate.Var(provider, "omitempty,oneof=HuggingFace OpenAI Anthropic Bedrock SageMaker"); err != nil {
		return invalidInput(traceID, errors.New("providerName is not a supported provider"))
	}

	uc := domain.UseCase{UseCaseID: id, UserID: userID(event), ProviderName: provider}
	uc.StackName = stackName(h.stackPrefix, uc)
	logger = logger.With("use_case_id", id)

	cmd, op := h.cmds.Delete, "delete"
	if strings.EqualFold(event.QueryStringParameters["permanent"], "true") {
		cmd, op = h.cmds.PermanentlyDelete, "permanent delete"
	}
	status, err := cmd.Execute(ctx, uc)
	if err != nil {
		return h.fail(logger, traceID, err)
	}
	logger.Info(op+" finished", "status", status)
	return reply(traceID, http.StatusOK, statusResponse{Status: status})
}

// fail maps command errors to responses. Internal details are only logged.
func (h *Handler) fail(logger *slog.Logger, traceID string, err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		switch ucErr.Code {
		case usecase.ErrorInvalidInput:
			logger.Warn("invalid input", "reason", ucErr.Reason, "err", ucErr.Err)
			return errorReply(traceID, http.StatusBadRequest, errorTypeValidation, ucErr.Code, ucErr.Reason)
		case usecase.ErrorNotFound:
			logger.Warn("use case not found", "reason", ucErr.Reason)
			return errorReply(traceID, http.StatusNotFound, errorTypeNotFound, ucErr.Code, "use case not found")
		}
		logger.Error("command failed", "reason", ucErr.Reason, "outcome", ucErr.Outcome, "err", ucErr.Err)
	} else {
		logger.Error("command failed", "err", err)
	}
	return errorReply(traceID, http.StatusInternalServerError, errorTypeExecution, usecase.ErrorInternal,
		"Internal Error - Please contact support and quote the following trace id: "+traceID)
}

func invalidInput(traceID string, err error) events.APIGatewayProxyResponse {
	return errorReply(traceID, http.StatusBadRequest, errorTypeValidation, usecase.ErrorInvalidInput, err.Error())
}

func errorReply(traceID string, status int, errorType string, code usecase.ErrorCode, msg string) events.APIGatewayProxyResponse {
	resp := reply(traceID, status, errorResponse{Error: string(code), Message: msg})
	resp.Headers[headerErrorType] = errorType
	return resp
}

func reply(traceID string, status int, body any) events.APIGatewayProxyResponse {
	headers := map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Origin,X-Requested-With,Content-Type,Accept,Authorization,X-Exclusive-Start-Key",
		"Access-Control-Allow-Methods": "OPTIONS,GET,POST,PATCH,DELETE",
		headerCorrelationID:            traceID,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    headers,
			Body:       `{"error":"INTERNAL_ERROR","message":"failed to encode response"}`,
		}
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(b)}
}

func pathUseCaseID(event events.APIGatewayProxyRequest) (string, error) {
	id := strings.TrimSpace(event.PathParameters["useCaseId"])
	if err := validate.Var(id, "required,uuid"); err != nil {
		return "", errors.New("useCaseId path parameter must be a UUID")
	}
	return id, nil
}

func userID(event events.APIGatewayProxyRequest) string {
	if v, ok := event.RequestContext.Authorizer["UserId"].(string); ok {
		return v
	}
	return ""
}

func correlationID(event events.APIGatewayProxyRequest) string {
	if v := header(event.Headers, headerCorrelationID); v != "" {
		return v
	}
	if event.RequestContext.RequestID != "" {
		return event.RequestContext.RequestID
	}
	return uuid.NewString()
}

// header looks a header up case-insensitively.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
