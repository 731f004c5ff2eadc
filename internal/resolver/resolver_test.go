package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/mocks"
	"github.com/xkilldash9x/pilot-cli/internal/prompts"
)

const testModel = "llama2"

func setup(t *testing.T) (*Resolver, *mocks.MockInferenceGateway, *mocks.MockPage) {
	t.Helper()
	gw := new(mocks.MockInferenceGateway)
	page := new(mocks.MockPage)
	t.Cleanup(func() {
		gw.AssertExpectations(t)
		page.AssertExpectations(t)
	})
	return New(gw, testModel, zaptest.NewLogger(t)), gw, page
}

func completion(response string) *schemas.Completion {
	return &schemas.Completion{Model: testModel, Response: response, Done: true}
}

func TestResolve_Success(t *testing.T) {
	r, gw, page := setup(t)
	handle := new(mocks.MockElementHandle)

	wantPrompt := prompts.BuildElementSelection("Find the form field for firstName", "<form></form>")
	gw.On("GenerateCompletion", mock.Anything, testModel, wantPrompt, schemas.CompletionOptions{}).
		Return(completion(`The first name input. selector: "#firstName"`), nil).Once()
	page.On("WaitForSelector", mock.Anything, "#firstName").Return(nil).Once()
	page.On("Query", mock.Anything, "#firstName").Return(handle, nil).Once()

	got, err := r.Resolve(context.Background(), page, "Find the form field for firstName", "<form></form>")
	require.NoError(t, err)
	assert.Same(t, handle, got)
}

func TestResolve_SelectorNotFound(t *testing.T) {
	r, gw, page := setup(t)
	gw.On("GenerateCompletion", mock.Anything, testModel, mock.Anything, mock.Anything).
		Return(completion("I cannot see a submit button."), nil).Once()

	got, err := r.Resolve(context.Background(), page, "Find the submit button for the form", "")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrSelectorNotFound)
	assert.True(t, IsMiss(err))
	page.AssertNotCalled(t, "WaitForSelector", mock.Anything, mock.Anything)
}

func TestResolve_SelectorTimesOut(t *testing.T) {
	r, gw, page := setup(t)
	gw.On("GenerateCompletion", mock.Anything, testModel, mock.Anything, mock.Anything).
		Return(completion(`selector: '#ghost'`), nil).Once()
	page.On("WaitForSelector", mock.Anything, "#ghost").
		Return(fmt.Errorf("%w: %q after 30s", schemas.ErrSelectorTimeout, "#ghost")).Once()

	_, err := r.Resolve(context.Background(), page, "ghost", "")
	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.True(t, IsMiss(err))
	page.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestResolve_QueryReturnsNothing(t *testing.T) {
	r, gw, page := setup(t)
	gw.On("GenerateCompletion", mock.Anything, testModel, mock.Anything, mock.Anything).
		Return(completion(`selector: "#gone"`), nil).Once()
	page.On("WaitForSelector", mock.Anything, "#gone").Return(nil).Once()
	page.On("Query", mock.Anything, "#gone").Return(nil, nil).Once()

	_, err := r.Resolve(context.Background(), page, "gone", "")
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestResolve_Failures(t *testing.T) {
	t.Run("gateway error", func(t *testing.T) {
		r, gw, page := setup(t)
		gwErr := schemas.NewGatewayError("Ollama", 500, []byte("model crashed"))
		gw.On("GenerateCompletion", mock.Anything, testModel, mock.Anything, mock.Anything).Return(nil, gwErr).Once()

		_, err := r.Resolve(context.Background(), page, "x", "")
		var target *schemas.GatewayError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, 500, target.StatusCode)
		assert.False(t, IsMiss(err))
	})

	t.Run("browser error while waiting", func(t *testing.T) {
		r, gw, page := setup(t)
		boom := errors.New("target closed")
		gw.On("GenerateCompletion", mock.Anything, testModel, mock.Anything, mock.Anything).
			Return(completion(`selector: "#a"`), nil).Once()
		page.On("WaitForSelector", mock.Anything, "#a").Return(boom).Once()

		_, err := r.Resolve(context.Background(), page, "x", "")
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsMiss(err))
	})

	t.Run("query error", func(t *testing.T) {
		r, gw, page := setup(t)
		boom := errors.New("invalid selector")
		gw.On("GenerateCompletion", mock.Anything, testModel, mock.Anything, mock.Anything).
			Return(completion(`selector: "#a"`), nil).Once()
		page.On("WaitForSelector", mock.Anything, "#a").Return(nil).Once()
		page.On("Query", mock.Anything, "#a").Return(nil, boom).Once()

		_, err := r.Resolve(context.Background(), page, "x", "")
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsMiss(err))
	})
}

func TestResolve_PromptCarriesDescriptionAndContent(t *testing.T) {
	r, gw, page := setup(t)
	gw.On("GenerateCompletion", mock.Anything, testModel, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, prompts.ElementSelection.Content) &&
			strings.Contains(p, "Element Description: the login link") &&
			strings.HasSuffix(p, "Page Content: <a>Login</a>")
	}), mock.Anything).Return(completion("none"), nil).Once()

	_, err := r.Resolve(context.Background(), page, "the login link", "<a>Login</a>")
	assert.ErrorIs(t, err, ErrSelectorNotFound)
}

func TestIsMiss(t *testing.T) {
	assert.True(t, IsMiss(fmt.Errorf("wrapped: %w", ErrSelectorNotFound)))
	assert.True(t, IsMiss(ErrElementNotFound))
	assert.False(t, IsMiss(errors.New("other")))
	assert.False(t, IsMiss(nil))
}
