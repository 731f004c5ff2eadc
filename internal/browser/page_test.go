package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

const formPage = `<!DOCTYPE html>
<html>
<head><title>Sign up</title></head>
<body>
  <h1>Create account</h1>
  <form id="signup" onsubmit="document.getElementById('status').innerText = 'sent ' + document.getElementById('firstName').value; return false;">
    <input id="firstName" name="firstName" type="text" value="prefilled">
    <button id="go" type="submit">Submit</button>
  </form>
  <p id="status">idle</p>
  <a href="/terms">Terms of service</a>
  <a href="https://example.com/help"> Help </a>
</body>
</html>`

func TestPage_Integration(t *testing.T) {
	f := newTestFixture(t)
	server := createStaticTestServer(t, formPage)
	ctx := f.RootCtx

	page, err := f.Browser.NewPage(ctx)
	require.NoError(t, err)

	require.NoError(t, page.Goto(ctx, server.URL))
	require.NoError(t, page.WaitForNetworkIdle(ctx))

	title, err := page.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Sign up", title)

	pc, err := ExtractPageContent(ctx, page)
	require.NoError(t, err)
	assert.Contains(t, pc.Text, "Create account")
	assert.Contains(t, pc.HTML, `id="signup"`)

	links, err := page.Links(ctx)
	require.NoError(t, err)
	assert.Equal(t, []schemas.Link{
		{URL: server.URL + "/terms", Text: "Terms of service"},
		{URL: "https://example.com/help", Text: "Help"},
	}, links)

	shot, err := page.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), shot[:4])

	t.Run("fill and click", func(t *testing.T) {
		require.NoError(t, page.WaitForSelector(ctx, "#firstName"))
		input, err := page.Query(ctx, "#firstName")
		require.NoError(t, err)
		require.NotNil(t, input)
		require.NoError(t, input.Fill(ctx, "Jason"))

		button, err := page.Query(ctx, "#go")
		require.NoError(t, err)
		require.NotNil(t, button)
		require.NoError(t, button.Click(ctx))

		require.Eventually(t, func() bool {
			text, err := page.InnerText(ctx, "#status")
			return err == nil && text == "sent Jason"
		}, 5*time.Second, 100*time.Millisecond)
	})

	t.Run("missing selector", func(t *testing.T) {
		h, err := page.Query(ctx, "#does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, h)

		err = page.WaitForSelector(ctx, "#does-not-exist")
		assert.ErrorIs(t, err, schemas.ErrSelectorTimeout)
	})

	require.NoError(t, page.Close(ctx))
	require.NoError(t, page.Close(ctx), "close is idempotent")
	_, err = page.Title(ctx)
	assert.ErrorIs(t, err, ErrPageClosed)
}

func TestBrowser_NewPageAfterClose(t *testing.T) {
	f := newTestFixture(t)
	require.NoError(t, f.Browser.Close(f.RootCtx))

	_, err := f.Browser.NewPage(f.RootCtx)
	assert.ErrorIs(t, err, ErrBrowserClosed)
	assert.NoError(t, f.Browser.Close(f.RootCtx))
}
