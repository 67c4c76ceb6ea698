package devserver

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// connectSSE opens a reload stream and returns a line reader plus a
// cleanup func.
func connectSSE(t *testing.T, url string) (*bufio.Reader, func()) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body), func() { _ = resp.Body.Close() }
}

func readUntil(t *testing.T, r *bufio.Reader, substr string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended while waiting for %q: %v", substr, err)
		}
		if strings.Contains(line, substr) {
			return line
		}
	}
	t.Fatalf("never saw %q", substr)
	return ""
}

func TestReloadHub_BroadcastReachesClient(t *testing.T) {
	hub := NewReloadHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Shutdown()

	r, closeStream := connectSSE(t, srv.URL)
	defer closeStream()
	readUntil(t, r, ": connected")
	readUntil(t, r, "data:")

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast("token-1")
	line := readUntil(t, r, "data:")
	require.Contains(t, line, `"token":"token-1"`)
}

// A fresh session must still deliver its very first change as a distinct
// event: the stream opens with a handshake carrying the empty token, and
// the change broadcast follows as its own data event. Without the
// handshake a client would consume the first change as its baseline and
// never reload for it.
func TestReloadHub_FreshSessionHandshakePrecedesFirstChange(t *testing.T) {
	hub := NewReloadHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Shutdown()

	r, closeStream := connectSSE(t, srv.URL)
	defer closeStream()
	readUntil(t, r, ": connected")

	handshake := readUntil(t, r, "data:")
	require.Contains(t, handshake, `"token":""`)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast("token-1")
	line := readUntil(t, r, "data:")
	require.Contains(t, line, `"token":"token-1"`)
}

func TestReloadHub_DuplicateTokenNotRebroadcast(t *testing.T) {
	hub := NewReloadHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Shutdown()

	r, closeStream := connectSSE(t, srv.URL)
	defer closeStream()
	readUntil(t, r, ": connected")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast("same")
	hub.Broadcast("same")
	hub.Broadcast("next")

	readUntil(t, r, `"token":"same"`)
	line := readUntil(t, r, "data:")
	require.Contains(t, line, `"token":"next"`, "duplicate token must not be rebroadcast")
}

func TestReloadHub_LateClientGetsLastToken(t *testing.T) {
	hub := NewReloadHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Shutdown()

	hub.Broadcast("early")

	r, closeStream := connectSSE(t, srv.URL)
	defer closeStream()
	line := readUntil(t, r, "data:")
	require.Contains(t, line, `"token":"early"`)
}

func TestReloadHub_ShutdownClosesClientsAndRefusesNew(t *testing.T) {
	hub := NewReloadHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	r, closeStream := connectSSE(t, srv.URL)
	defer closeStream()
	readUntil(t, r, ": connected")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Shutdown()
	require.Zero(t, hub.ClientCount())

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Broadcasts after shutdown are dropped silently.
	hub.Broadcast("after")
}
