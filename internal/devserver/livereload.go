package devserver

import (
	"bufio"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// heartbeatInterval is the SSE keepalive comment period.
const heartbeatInterval = 30 * time.Second

// ReloadHub manages SSE clients for change-token broadcasts.
type ReloadHub struct {
	mu        sync.RWMutex
	nextID    int
	clients   map[int]*reloadClient
	recorder  metrics.Recorder
	closed    bool
	lastToken string
}

type reloadClient struct {
	id   int
	ch   chan string
	done chan struct{}
}

// NewReloadHub creates a hub. A nil recorder defaults to no-op metrics.
func NewReloadHub(recorder metrics.Recorder) *ReloadHub {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &ReloadHub{clients: map[int]*reloadClient{}, recorder: recorder}
}

// ServeHTTP implements the SSE endpoint.
func (h *ReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &reloadClient{ch: make(chan string, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	current := h.lastToken
	count := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetReloadClients(count)

	// Initial comment plus an unconditional handshake event carrying the
	// current token (empty on a fresh session). The client consumes the
	// handshake to establish its baseline, so the first real change event
	// is never mistaken for it, and a client that reconnected mid-change
	// still learns about the change it missed.
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		slog.Debug("livereload write", "error", err)
		return
	}
	if _, err := bw.WriteString("data: {\"token\":\"" + current + "\"}\n\n"); err != nil {
		slog.Debug("livereload write", "error", err)
		return
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.removeClient(client.id)
			return
		case <-client.done:
			h.removeClient(client.id)
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			} else {
				slog.Debug("livereload ping write", "error", err)
			}
		case token := <-client.ch:
			if _, err := bw.WriteString("data: {\"token\":\"" + token + "\"}\n\n"); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			} else {
				slog.Debug("livereload broadcast write", "error", err)
			}
		}
	}
}

func (h *ReloadHub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
		h.recorder.SetReloadClients(count)
	}
}

// ClientCount returns the number of connected clients.
func (h *ReloadHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a new change token to every client. A client whose
// channel is full is silently dropped; a send failure must never surface
// to other clients.
func (h *ReloadHub) Broadcast(token string) {
	h.mu.Lock()
	if h.closed || token == "" || token == h.lastToken {
		h.mu.Unlock()
		return
	}
	h.lastToken = token
	snapshot := make([]*reloadClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- token:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.recorder.IncReloadBroadcast()
	slog.Debug("livereload broadcast", "token", token, "clients", len(snapshot), "dropped", dropped)
}

// Shutdown closes all clients and prevents future broadcasts.
func (h *ReloadHub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*reloadClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetReloadClients(0)
}

// ReloadScript is the client snippet served at the reload script path.
// The server always opens the stream with a handshake event; the client
// records that token as its baseline and reloads on any later token that
// differs. The baseline survives reconnects, so a change broadcast while
// disconnected still triggers a reload from the replayed handshake, and
// exhausting the reconnect attempts falls back to a full page reload.
const ReloadScript = `(() => {
  if (window.__SITEGEN_LR__) return;
  window.__SITEGEN_LR__ = true;
  let delay = 1000;
  let failures = 0;
  let current = null;
  function connect() {
    const es = new EventSource('/__livereload');
    es.onopen = () => { delay = 1000; failures = 0; };
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        const token = p.token || '';
        if (current === null) { current = token; return; }
        if (token !== current) { location.reload(); }
      } catch (_) {}
    };
    es.onerror = () => {
      es.close();
      failures += 1;
      if (failures > 10) { location.reload(); return; }
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 10000);
    };
  }
  connect();
})();`
