// internal/orchestrator/helpers_test.go
package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/mocks"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
)

const (
	testVisionModel   = "llava"
	testLanguageModel = "llama2"
	testURL           = "https://example.com"
)

// fixture bundles an orchestrator with the mocks behind it.
type fixture struct {
	orch       *Orchestrator
	cfg        *config.Config
	inference  *mocks.MockInferenceGateway
	perception *mocks.MockPerceptionGateway
	browser    *mocks.MockBrowser
	page       *mocks.MockPage
	journal    *mocks.MockJournal
	metrics    *observability.Metrics
	logs       *observer.ObservedLogs
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.InferenceCfg.BaseURL = "http://ollama.test:11434"
	cfg.InferenceCfg.VisionModel = testVisionModel
	cfg.InferenceCfg.LanguageModel = testLanguageModel
	cfg.PerceptionCfg.BaseURL = "http://gradio.test:7860"
	cfg.OrchestratorCfg.MaxDiscoveredURLs = 2
	cfg.OrchestratorCfg.TaskTimeout = 0
	return cfg
}

// newFixture builds an uninitialized orchestrator. The journal accepts every record.
func newFixture(t *testing.T, configure ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, fn := range configure {
		fn(cfg)
	}

	f := &fixture{
		cfg:        cfg,
		inference:  new(mocks.MockInferenceGateway),
		perception: new(mocks.MockPerceptionGateway),
		browser:    new(mocks.MockBrowser),
		page:       new(mocks.MockPage),
		journal:    new(mocks.MockJournal),
		metrics:    observability.NewMetrics("test"),
	}
	f.journal.On("RecordTask", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	core, logs := observer.New(zap.DebugLevel)
	f.logs = logs

	orch, err := New(cfg, Dependencies{
		Inference:  f.inference,
		Perception: f.perception,
		Launch: func(ctx context.Context) (schemas.Browser, error) {
			return f.browser, nil
		},
		Journal: f.journal,
		Metrics: f.metrics,
	}, zap.New(core))
	require.NoError(t, err)
	f.orch = orch

	t.Cleanup(func() {
		f.inference.AssertExpectations(t)
		f.perception.AssertExpectations(t)
		f.page.AssertExpectations(t)
	})
	return f
}

// newInitializedFixture builds an orchestrator that already owns the mock page.
func newInitializedFixture(t *testing.T, configure ...func(*config.Config)) *fixture {
	t.Helper()
	f := newFixture(t, configure...)
	f.browser.On("NewPage", mock.Anything).Return(f.page, nil).Once()
	f.perception.On("Connect", mock.Anything).Return(nil).Once()
	require.NoError(t, f.orch.Initialize(context.Background()))
	return f
}

func completion(model, response string) *schemas.Completion {
	return &schemas.Completion{Model: model, Response: response, Done: true, DoneReason: "stop"}
}

// expectPageLoad sets up a successful Goto + network idle + link collection.
func (f *fixture) expectPageLoad(url string, links []schemas.Link) {
	f.page.On("Goto", mock.Anything, url).Return(nil).Once()
	f.page.On("WaitForNetworkIdle", mock.Anything).Return(nil).Once()
	f.page.On("Links", mock.Anything).Return(links, nil).Once()
}

// expectContentExtraction sets up the body text, HTML and title reads.
func (f *fixture) expectContentExtraction(html, title string) {
	f.page.On("InnerText", mock.Anything, "body").Return("page text", nil).Once()
	f.page.On("Content", mock.Anything).Return(html, nil).Once()
	f.page.On("Title", mock.Anything).Return(title, nil).Once()
}
