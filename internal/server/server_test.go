package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagesmith/internal/preview"
)

func newTestServer(t *testing.T, origins ...string) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Config{Host: "127.0.0.1", Port: 0, AllowedOrigins: origins})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", &websocket.DialOptions{HTTPHeader: header})
}

func readUpdate(t *testing.T, conn *websocket.Conn) UpdateMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestDocumentEndpoint(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/document")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, s.Deliver(context.Background(), preview.Document{HTML: "<p>hi</p>", Seq: 3}))

	resp, err = http.Get(ts.URL + "/document")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<p>hi</p>", string(body))
	assert.Equal(t, "3", resp.Header.Get("X-Pagesmith-Seq"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestViewerSandboxesDocument(t *testing.T) {
	s, ts := newTestServer(t)
	require.NoError(t, s.Deliver(context.Background(), preview.Document{HTML: `<p class="x">a & b</p>`, Seq: 7}))

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	page := string(body)
	assert.Contains(t, page, `sandbox="allow-scripts"`)
	assert.NotContains(t, page, "allow-same-origin")
	assert.Contains(t, page, `data-seq="7"`)
	assert.Contains(t, page, `srcdoc="&lt;p class=&#34;x&#34;&gt;a &amp; b&lt;/p&gt;"`)

	resp, err = http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	s, ts := newTestServer(t)
	require.NoError(t, s.Deliver(context.Background(), preview.Document{HTML: "x", Seq: 2}))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, true, health["rendered"])
	assert.Equal(t, float64(2), health["seq"])
	assert.NotEmpty(t, health["version"])

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/healthz", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, "http://editor.example")

	tests := []struct {
		name     string
		origin   string
		expected string
	}{
		{"allowed origin echoed", "http://editor.example", "http://editor.example"},
		{"unknown origin gets nothing", "http://evil.example", ""},
		{"no origin", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/document", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, http.StatusNoContent, resp.StatusCode)
			assert.Equal(t, tt.expected, resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestWebSocketReceivesUpdates(t *testing.T) {
	s, ts := newTestServer(t)

	conn, _, err := dial(t, ts, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Deliver(context.Background(), preview.Document{HTML: "<p>one</p>", Seq: 1}))
	require.NoError(t, s.Deliver(context.Background(), preview.Document{HTML: "<p>two</p>", Seq: 2}))

	first := readUpdate(t, conn)
	second := readUpdate(t, conn)
	assert.Equal(t, "document", first.Type)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, "<p>two</p>", second.HTML)
	assert.Equal(t, uint64(2), second.Seq)
}

func TestLateClientGetsCurrentDocument(t *testing.T) {
	s, ts := newTestServer(t)
	require.NoError(t, s.Deliver(context.Background(), preview.Document{HTML: "<p>current</p>", Seq: 5}))

	conn, _, err := dial(t, ts, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	msg := readUpdate(t, conn)
	assert.Equal(t, uint64(5), msg.Seq)
	assert.Equal(t, "<p>current</p>", msg.HTML)
}

func TestWebSocketOriginCheck(t *testing.T) {
	_, ts := newTestServer(t, "http://editor.example")

	_, resp, err := dial(t, ts, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, ts, http.Header{"Origin": []string{"http://editor.example"}})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestIsAllowedOrigin(t *testing.T) {
	hub := NewHub([]string{"http://a.example/", "http://B.example"}, nil)
	defer hub.Close()

	assert.True(t, hub.IsAllowedOrigin("", "localhost:8080"))
	assert.True(t, hub.IsAllowedOrigin("http://localhost:8080", "localhost:8080"))
	assert.True(t, hub.IsAllowedOrigin("http://a.example", "localhost:8080"))
	assert.True(t, hub.IsAllowedOrigin("http://b.example", "localhost:8080"))
	assert.False(t, hub.IsAllowedOrigin("http://c.example", "localhost:8080"))

	open := NewHub([]string{"*"}, nil)
	defer open.Close()
	assert.True(t, open.IsAllowedOrigin("http://anything.example", "localhost:8080"))
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	s, ts := newTestServer(t)

	conn, _, err := dial(t, ts, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	s.Hub().Close()
	assert.Equal(t, 0, s.Hub().Clients())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)
	assert.Error(t, err)

	_, resp, err := dial(t, ts, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStartAndShutdown(t *testing.T) {
	s := New(Config{Host: "127.0.0.1", Port: 0})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return s.ListenAddr() != "" }, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + s.ListenAddr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, "localhost:8080", Config{Host: "localhost", Port: 8080}.Addr())
	assert.Equal(t, "[::1]:9000", Config{Host: "::1", Port: 9000}.Addr())
}
