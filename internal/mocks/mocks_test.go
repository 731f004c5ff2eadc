// File: internal/mocks/mocks_test.go
package mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

var (
	_ config.Interface          = (*MockConfig)(nil)
	_ schemas.InferenceGateway  = (*MockInferenceGateway)(nil)
	_ schemas.PerceptionGateway = (*MockPerceptionGateway)(nil)
	_ schemas.Browser           = (*MockBrowser)(nil)
	_ schemas.Page              = (*MockPage)(nil)
	_ schemas.ElementHandle     = (*MockElementHandle)(nil)
)

func TestMockPage_QueryNilHandle(t *testing.T) {
	page := new(MockPage)
	page.On("Query", mock.Anything, "#missing").Return(nil, nil)

	h, err := page.Query(context.Background(), "#missing")
	require.NoError(t, err)
	assert.Nil(t, h, "a nil expectation must come back as an untyped nil interface")
	page.AssertExpectations(t)
}

func TestMockInferenceGateway_CancelledContext(t *testing.T) {
	gw := new(MockInferenceGateway)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.GenerateCompletion(ctx, "llama2", "prompt", schemas.CompletionOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	gw.AssertNotCalled(t, "GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMockPerceptionGateway_Error(t *testing.T) {
	gw := new(MockPerceptionGateway)
	boom := errors.New("gradio down")
	gw.On("ProcessScreenshot", mock.Anything, []byte("png")).Return(nil, boom)

	res, err := gw.ProcessScreenshot(context.Background(), []byte("png"))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}
