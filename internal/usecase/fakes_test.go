package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"

	"usecase-deployments/internal/domain"
	"usecase-deployments/internal/integrations/paramstore"
)

// callLog records calls across every fake in the order they happened.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.all() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeStacks struct {
	log         *callLog
	stackID     string
	createErr   error
	updateErr   error
	deleteErr   error
	details     map[string]domain.StackDetails
	describeErr map[string]error
	created     []domain.UseCase
	updated     []domain.UseCase
}

func (f *fakeStacks) CreateStack(_ context.Context, uc domain.UseCase) (string, error) {
	f.log.add("stack.create")
	f.created = append(f.created, uc)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.stackID, nil
}

func (f *fakeStacks) UpdateStack(_ context.Context, uc domain.UseCase) error {
	f.log.add("stack.update")
	f.updated = append(f.updated, uc)
	return f.updateErr
}

func (f *fakeStacks) DeleteStack(_ context.Context, _ domain.UseCase) error {
	f.log.add("stack.delete")
	return f.deleteErr
}

func (f *fakeStacks) GetStackDetails(_ context.Context, info domain.StackInfo) (domain.StackDetails, error) {
	f.log.add("stack.describe")
	if err := f.describeErr[info.StackID]; err != nil {
		return domain.StackDetails{}, err
	}
	return f.details[info.StackID], nil
}

type fakeRecords struct {
	log       *callLog
	mu        sync.Mutex
	rows      map[string]domain.UseCaseRecord
	createErr error
	updateErr error
	markErr   error
	deleteErr error
	getErr    error
	scan      domain.ScanResult
	scanErr   error
}

func newFakeRecords(log *callLog) *fakeRecords {
	return &fakeRecords{log: log, rows: map[string]domain.UseCaseRecord{}}
}

func (f *fakeRecords) CreateUseCaseRecord(_ context.Context, uc domain.UseCase) error {
	f.log.add("record.create")
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[uc.UseCaseID] = domain.UseCaseRecord{
		UseCaseID:       uc.UseCaseID,
		StackID:         uc.StackID,
		Name:            uc.Name,
		SSMParameterKey: uc.ConfigParameterName(),
		CreatedBy:       uc.UserID,
	}
	return nil
}

func (f *fakeRecords) UpdateUseCaseRecord(_ context.Context, uc domain.UseCase) error {
	f.log.add("record.update")
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.rows[uc.UseCaseID]
	rec.SSMParameterKey = uc.ConfigParameterName()
	rec.UpdatedBy = uc.UserID
	f.rows[uc.UseCaseID] = rec
	return nil
}

func (f *fakeRecords) MarkUseCaseRecordForDeletion(_ context.Context, uc domain.UseCase) error {
	f.log.add("record.mark")
	if f.markErr != nil {
		return f.markErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.rows[uc.UseCaseID]; ok {
		rec.TTL = 1
		rec.DeletedBy = uc.UserID
		f.rows[uc.UseCaseID] = rec
	}
	return nil
}

func (f *fakeRecords) DeleteUseCaseRecord(_ context.Context, uc domain.UseCase) (*domain.UseCaseRecord, error) {
	f.log.add("record.delete")
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[uc.UseCaseID]
	if !ok {
		return nil, nil
	}
	delete(f.rows, uc.UseCaseID)
	return &rec, nil
}

func (f *fakeRecords) GetUseCaseRecord(_ context.Context, uc domain.UseCase) (domain.UseCaseRecord, error) {
	f.log.add("record.get")
	if f.getErr != nil {
		return domain.UseCaseRecord{}, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[uc.UseCaseID]
	if !ok {
		return domain.UseCaseRecord{}, fmt.Errorf("get %s: %w", uc.UseCaseID, domain.ErrUseCaseNotFound)
	}
	return rec, nil
}

func (f *fakeRecords) GetAllCaseRecords(_ context.Context, _ domain.ListUseCasesInput) (domain.ScanResult, error) {
	f.log.add("record.scan")
	return f.scan, f.scanErr
}

// memParams is an in-memory parameter store. The real ConfigStore runs on
// top of it so merge and cutover behaviour is exercised end to end.
type memParams struct {
	log       *callLog
	mu        sync.Mutex
	vals      map[string]string
	putErr    error
	deleteErr error
	getErr    map[string]error
}

func newMemParams(log *callLog) *memParams {
	return &memParams{log: log, vals: map[string]string{}, getErr: map[string]error{}}
}

func (m *memParams) GetParameter(_ context.Context, name string) (string, error) {
	m.log.add("config.get")
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[name]; err != nil {
		return "", err
	}
	v, ok := m.vals[name]
	if !ok {
		return "", fmt.Errorf("get %s: %w", name, &types.ParameterNotFound{})
	}
	return v, nil
}

func (m *memParams) PutParameter(_ context.Context, name, value string) error {
	m.log.add("config.put")
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[name] = value
	return nil
}

func (m *memParams) DeleteParameter(_ context.Context, name string) error {
	m.log.add("config.delete")
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, &types.ParameterNotFound{})
	}
	delete(m.vals, name)
	return nil
}

func (m *memParams) value(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[name]
	return v, ok
}

type fakeSecrets struct {
	log       *callLog
	createErr error
	updateErr error
	deleteErr error
}

func (f *fakeSecrets) SecretName(useCaseID string) string {
	return useCaseID + "/api-key"
}

func (f *fakeSecrets) CreateSecret(_ context.Context, _ domain.UseCase) error {
	f.log.add("secret.create")
	return f.createErr
}

func (f *fakeSecrets) UpdateSecret(_ context.Context, _ domain.UseCase) error {
	f.log.add("secret.update")
	return f.updateErr
}

func (f *fakeSecrets) DeleteSecret(_ context.Context, _ domain.UseCase) error {
	f.log.add("secret.delete")
	return f.deleteErr
}

type env struct {
	log     *callLog
	stacks  *fakeStacks
	records *fakeRecords
	params  *memParams
	secrets *fakeSecrets
	deps    Dependencies
}

const testPrefix = "/gaab-ai/use-case-config"

func newEnv(t *testing.T) *env {
	t.Helper()
	log := &callLog{}
	e := &env{
		log:     log,
		stacks:  &fakeStacks{log: log, stackID: "arn:aws:cloudformation:us-east-1:111122223333:stack/UseCase-11111111/abc"},
		records: newFakeRecords(log),
		params:  newMemParams(log),
		secrets: &fakeSecrets{log: log},
	}
	configs, err := paramstore.NewConfigStore(e.params)
	require.NoError(t, err)
	e.deps = Dependencies{
		Stacks:       e.stacks,
		Records:      e.records,
		Configs:      configs,
		Secrets:      e.secrets,
		ConfigPrefix: testPrefix,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	stubUUIDs(t)
	return e
}

// stubUUIDs makes config parameter names predictable: v1, v2, ...
func stubUUIDs(t *testing.T) {
	t.Helper()
	orig := newUUID
	n := 0
	newUUID = func() string {
		n++
		return "v" + strconv.Itoa(n)
	}
	t.Cleanup(func() { newUUID = orig })
}

func useCase(provider string) domain.UseCase {
	return domain.UseCase{
		UseCaseID:    "11111111-2222-3333-4444-555555555555",
		Name:         "support-bot",
		Description:  "customer support assistant",
		UserID:       "user-1",
		ProviderName: provider,
		UseCaseType:  domain.UseCaseTypeChat,
		StackName:    "UseCase-11111111",
		APIKey:       "hf-secret",
		CfnParameters: map[string]string{
			domain.CfnParamDefaultUserEmail: "owner@example.com",
		},
		Configuration: map[string]any{
			"UseCaseName": "support-bot",
			"LlmParams": map[string]any{
				"ModelProvider": provider,
				"ModelId":       "google/flan-t5-xxl",
				"ModelParams":   map[string]any{"temperature": 0.2, "top_p": 0.9},
			},
		},
	}
}
