// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/task"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Inference() config.InferenceConfig {
	args := m.Called()
	return args.Get(0).(config.InferenceConfig)
}

func (m *MockConfig) Perception() config.PerceptionConfig {
	args := m.Called()
	return args.Get(0).(config.PerceptionConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Network() config.NetworkConfig {
	args := m.Called()
	return args.Get(0).(config.NetworkConfig)
}

func (m *MockConfig) Orchestrator() config.OrchestratorConfig {
	args := m.Called()
	return args.Get(0).(config.OrchestratorConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Metrics() config.MetricsConfig {
	args := m.Called()
	return args.Get(0).(config.MetricsConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetInferenceProvider(p config.LLMProvider) {
	m.Called(p)
}

func (m *MockConfig) SetUnresolvedPolicy(p config.UnresolvedPolicy) {
	m.Called(p)
}

// -- Inference Gateway Mock --

// MockInferenceGateway mocks the schemas.InferenceGateway interface.
type MockInferenceGateway struct {
	mock.Mock
}

// GenerateCompletion honours context cancellation before recording the call.
func (m *MockInferenceGateway) GenerateCompletion(ctx context.Context, model, prompt string, opts schemas.CompletionOptions) (*schemas.Completion, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	args := m.Called(ctx, model, prompt, opts)
	if c, ok := args.Get(0).(*schemas.Completion); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockInferenceGateway) ListModels(ctx context.Context) ([]schemas.ModelInfo, error) {
	args := m.Called(ctx)
	if models, ok := args.Get(0).([]schemas.ModelInfo); ok {
		return models, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockInferenceGateway) CheckModelStatus(ctx context.Context, model string) bool {
	return m.Called(ctx, model).Bool(0)
}

// -- Perception Gateway Mock --

// MockPerceptionGateway mocks the schemas.PerceptionGateway interface.
type MockPerceptionGateway struct {
	mock.Mock
}

func (m *MockPerceptionGateway) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPerceptionGateway) ProcessScreenshot(ctx context.Context, png []byte) (*schemas.PerceptionResult, error) {
	args := m.Called(ctx, png)
	if r, ok := args.Get(0).(*schemas.PerceptionResult); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

// -- Browser Engine Mocks --

// MockBrowser mocks the schemas.Browser interface.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) NewPage(ctx context.Context) (schemas.Page, error) {
	args := m.Called(ctx)
	if p, ok := args.Get(0).(schemas.Page); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowser) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// MockPage mocks the schemas.Page interface.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Goto(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) WaitForNetworkIdle(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) Content(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) InnerText(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *MockPage) WaitForSelector(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

// Query returns a nil handle when the expectation was set up with nil.
func (m *MockPage) Query(ctx context.Context, selector string) (schemas.ElementHandle, error) {
	args := m.Called(ctx, selector)
	if h, ok := args.Get(0).(schemas.ElementHandle); ok {
		return h, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) Links(ctx context.Context) ([]schemas.Link, error) {
	args := m.Called(ctx)
	if links, ok := args.Get(0).([]schemas.Link); ok {
		return links, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// MockElementHandle mocks the schemas.ElementHandle interface.
type MockElementHandle struct {
	mock.Mock
}

func (m *MockElementHandle) Fill(ctx context.Context, value string) error {
	return m.Called(ctx, value).Error(0)
}

func (m *MockElementHandle) Click(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Journal Mock --

// MockJournal mocks the orchestrator's run journal.
type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) RecordTask(ctx context.Context, snap task.Snapshot, elapsed time.Duration) error {
	return m.Called(ctx, snap, elapsed).Error(0)
}

// -- Orchestrator Mock --

// MockOrchestrator mocks the task runner driven by the CLI.
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Initialize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockOrchestrator) RunPlan(ctx context.Context, root *task.Task, commands []task.Command) error {
	return m.Called(ctx, root, commands).Error(0)
}

func (m *MockOrchestrator) Cleanup(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
