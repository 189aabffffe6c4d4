package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awscfn "github.com/aws/aws-sdk-go-v2/service/cloudformation"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awssecrets "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"usecase-deployments/handler"
	"usecase-deployments/internal/integrations/cloudformation"
	"usecase-deployments/internal/integrations/paramstore"
	"usecase-deployments/internal/integrations/secrets"
	"usecase-deployments/internal/repository"
	"usecase-deployments/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	tableName := mustEnv("USE_CASES_TABLE_NAME")
	configPrefix := mustEnv("USE_CASE_CONFIG_SSM_PARAMETER_PREFIX")
	templateBucket := mustEnv("ARTIFACT_BUCKET_LOCATION")
	templatePrefix := os.Getenv("ARTIFACT_KEY_PREFIX")
	deployRoleARN := os.Getenv("CFN_DEPLOY_ROLE_ARN")
	secretSuffix := envString("USE_CASE_API_KEY_SUFFIX_ENV_VAR", "api-key")
	stackPrefix := envString("STACK_NAME_PREFIX", "UseCase")
	scanLimit := envInt("DDB_SCAN_RECORDS_LIMIT", 500)
	ttlDays := envInt("USE_CASE_RECORD_TTL_DAYS", 89)
	listConcurrency := envInt("LIST_ENRICHMENT_CONCURRENCY", 8)
	rollback := envBool("ENABLE_CREATE_ROLLBACK", false)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	stacks, err := cloudformation.New(awscfn.NewFromConfig(cfg),
		cloudformation.TemplateLocation{Bucket: templateBucket, KeyPrefix: templatePrefix},
		cloudformation.WithRoleARN(deployRoleARN))
	if err != nil {
		slog.Error("failed to create CloudFormation client", "err", err)
		os.Exit(1)
	}
	records, err := repository.New(awsdynamodb.NewFromConfig(cfg), tableName,
		repository.WithScanLimit(scanLimit),
		repository.WithRecordTTL(time.Duration(ttlDays)*24*time.Hour))
	if err != nil {
		slog.Error("failed to create use case table client", "err", err)
		os.Exit(1)
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	configs, err := paramstore.NewConfigStore(ssmClient)
	if err != nil {
		slog.Error("failed to create config store", "err", err)
		os.Exit(1)
	}
	secretStore, err := secrets.New(awssecrets.NewFromConfig(cfg), secretSuffix)
	if err != nil {
		slog.Error("failed to create Secrets Manager client", "err", err)
		os.Exit(1)
	}

	// ---- Commands ----
	deps := usecase.Dependencies{
		Stacks:       stacks,
		Records:      records,
		Configs:      configs,
		Secrets:      secretStore,
		ConfigPrefix: configPrefix,
		Logger:       logger,
	}
	create, err := usecase.NewCreateCommand(deps, usecase.WithRollback(rollback))
	if err != nil {
		slog.Error("failed to create command", "command", "create", "err", err)
		os.Exit(1)
	}
	update, err := usecase.NewUpdateCommand(deps)
	if err != nil {
		slog.Error("failed to create command", "command", "update", "err", err)
		os.Exit(1)
	}
	del, err := usecase.NewDeleteCommand(deps)
	if err != nil {
		slog.Error("failed to create command", "command", "delete", "err", err)
		os.Exit(1)
	}
	permDel, err := usecase.NewPermanentlyDeleteCommand(deps)
	if err != nil {
		slog.Error("failed to create command", "command", "permanently_delete", "err", err)
		os.Exit(1)
	}
	list, err := usecase.NewListCommand(deps, usecase.WithConcurrency(listConcurrency))
	if err != nil {
		slog.Error("failed to create command", "command", "list", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(handler.Commands{
		Create:            create,
		Update:            update,
		Delete:            del,
		PermanentlyDelete: permDel,
		List:              list,
	}, handler.WithLogger(logger), handler.WithStackNamePrefix(stackPrefix))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
