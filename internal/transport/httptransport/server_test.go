package httptransport

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discoveryd/discoveryd/internal/dispatch"
	"github.com/discoveryd/discoveryd/internal/registry"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	r := registry.New()
	d := dispatch.New(r, nil)
	s := New(d, r, Options{})
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	t.Cleanup(s.Shutdown)
	return s, hs
}

func TestHealthEndpointExemptAndReturnsOK(t *testing.T) {
	_, hs := newTestServer(t)

	resp, err := http.Get(hs.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInitializeMintsSessionIDHeader(t *testing.T) {
	_, hs := newTestServer(t)

	resp, err := http.Post(hs.URL+"/", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(SessionIDHeader))
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	line := firstDataLine(t, resp)
	assert.Contains(t, line, `"id":1`)
}

func TestRequestWithoutSessionIDIsRejected(t *testing.T) {
	_, hs := newTestServer(t)

	resp, err := http.Post(hs.URL+"/", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestWithUnknownSessionIDIsRejected(t *testing.T) {
	_, hs := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, hs.URL+"/", strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	require.NoError(t, err)
	req.Header.Set(SessionIDHeader, "nonexistent-session")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubsequentRequestWithSessionIDSucceeds(t *testing.T) {
	_, hs := newTestServer(t)

	initResp, err := http.Post(hs.URL+"/", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	sessionID := initResp.Header.Get(SessionIDHeader)
	initResp.Body.Close()
	require.NotEmpty(t, sessionID)

	req, err := http.NewRequest(http.MethodPost, hs.URL+"/", strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	require.NoError(t, err)
	req.Header.Set(SessionIDHeader, sessionID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	line := firstDataLine(t, resp)
	assert.Contains(t, line, `"id":2`)
}

func TestMalformedBodyProducesParseErrorEvent(t *testing.T) {
	_, hs := newTestServer(t)

	resp, err := http.Post(hs.URL+"/", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	line := firstDataLine(t, resp)
	assert.Contains(t, line, "-32700")
}

func TestListChangedDeliveredOnSubsequentRequest(t *testing.T) {
	r := registry.New()
	d := dispatch.New(r, nil)
	s := New(d, r, Options{})
	hs := httptest.NewServer(s.Handler())
	defer hs.Close()
	defer s.Shutdown()

	initResp, err := http.Post(hs.URL+"/", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	sessionID := initResp.Header.Get(SessionIDHeader)
	initResp.Body.Close()
	require.NotEmpty(t, sessionID)

	// Mutate the registry between requests; the resulting list_changed
	// must reach the session on its next request, not be lost with the
	// initialize stream.
	r.StartModule("mod-a", "network", "a.yaml")
	require.NoError(t, r.RegisterTool(registry.ToolRecord{
		Name:         "ping",
		ModuleOrigin: "mod-a",
		InputSchema:  registry.Simple(registry.ObjectShape{Fields: map[string]registry.Field{}}),
		Handler: func(ctx context.Context, params map[string]interface{}) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		},
	}))
	require.NoError(t, r.CompleteModule("mod-a", nil))

	req, err := http.NewRequest(http.MethodPost, hs.URL+"/", strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	require.NoError(t, err)
	req.Header.Set(SessionIDHeader, sessionID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := allDataLines(t, resp)
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], `"id":2`)
	assert.Contains(t, strings.Join(lines, "\n"), "notifications/tools/list_changed")
}

func firstDataLine(t *testing.T, resp *http.Response) string {
	t.Helper()
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimPrefix(line, "data: ")
		}
	}
	require.NoError(t, scanner.Err())
	t.Fatal("no data line found in SSE stream")
	return ""
}

func allDataLines(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			lines = append(lines, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, scanner.Err())
	return lines
}
