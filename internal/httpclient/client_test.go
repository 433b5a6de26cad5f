package httpclient

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/uvotredux/internal/errors"
)

const testURL = "https://archive.test/data"

func newMockClient(retries int) (*Client, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	client := New(Config{
		Service:    "Archive",
		Component:  "test",
		Timeout:    time.Second,
		UserAgent:  "uvotredux-test/1.0",
		Retries:    retries,
		RetryDelay: time.Millisecond,
		Transport:  transport,
	})
	return client, transport
}

func TestGetRetriesServerErrors(t *testing.T) {
	t.Parallel()

	client, transport := newMockClient(3)
	var calls atomic.Int32
	transport.RegisterResponder(http.MethodGet, testURL,
		func(req *http.Request) (*http.Response, error) {
			if calls.Add(1) < 3 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "payload"), nil
		})

	resp, err := client.Get(context.Background(), testURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, 3, transport.GetTotalCallCount())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	client, transport := newMockClient(3)
	transport.RegisterResponder(http.MethodGet, testURL,
		httpmock.NewStringResponder(http.StatusForbidden, "denied"))

	_, err := client.Get(context.Background(), testURL)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "Archive returned status 403: denied")
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	client, transport := newMockClient(2)
	transport.RegisterResponder(http.MethodGet, testURL,
		httpmock.NewStringResponder(http.StatusNotFound, "missing"))

	_, err := client.Get(context.Background(), testURL)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, Retryable(err))
}

func TestGetSetsUserAgentAndCallsHook(t *testing.T) {
	t.Parallel()

	client, transport := newMockClient(2)
	transport.RegisterResponder(http.MethodGet, testURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "uvotredux-test/1.0", req.Header.Get("User-Agent"))
			return httpmock.NewStringResponse(http.StatusBadGateway, "down"), nil
		})

	var hooked atomic.Int32
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error) {
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		hooked.Add(1)
	})

	_, err := client.Get(context.Background(), testURL)
	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.Equal(t, int32(2), hooked.Load())
}

func TestGetCancelledContext(t *testing.T) {
	t.Parallel()

	client, transport := newMockClient(3)
	transport.RegisterResponder(http.MethodGet, testURL,
		httpmock.NewStringResponder(http.StatusOK, "payload"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, testURL)
	require.Error(t, err)
	assert.Equal(t, 0, transport.GetTotalCallCount())
}

func TestErrorText(t *testing.T) {
	t.Parallel()

	html := []byte("<html><body><h1>Service Unavailable</h1>\n<p>try   later</p></body></html>")
	text := ErrorText("text/html; charset=utf-8", html)
	assert.NotContains(t, text, "<h1>")
	assert.Contains(t, text, "Service Unavailable")
	assert.NotContains(t, text, "\n")

	plain := ErrorText("text/plain", []byte("<b>kept</b>"))
	assert.Equal(t, "<b>kept</b>", plain)

	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, ErrorText("", long), maxErrorText+len("..."))
}
