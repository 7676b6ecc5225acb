package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/snestrace/internal/observability"
	"github.com/danmuck/snestrace/internal/testutil/testlog"
	"github.com/danmuck/snestrace/internal/traceimport"
	"github.com/danmuck/snestrace/internal/tracelink"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
)

type fakeSource struct {
	mu    sync.Mutex
	state tracelink.State
	stats traceimport.Statistics
}

func (f *fakeSource) CurrentStatistics() traceimport.Statistics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeSource) State() tracelink.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) set(state tracelink.State, modified uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.stats.BytesModified = modified
}

func newTestServer(t *testing.T, source Source) *httptest.Server {
	t.Helper()
	s := New(source, Options{PushInterval: 20 * time.Millisecond, Version: "test"})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return ts
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status=%d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHealth(t *testing.T) {
	testlog.Start(t)

	ts := newTestServer(t, &fakeSource{})
	var body map[string]any
	getJSON(t, ts.URL+"/health", &body)
	if body["status"] != "ok" || body["version"] != "test" || body["state"] != "disconnected" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestStatsReportsSource(t *testing.T) {
	testlog.Start(t)

	source := &fakeSource{}
	source.set(tracelink.StateHandshakeComplete, 12)
	source.stats.RemoteROM = "MOCK ROM"
	ts := newTestServer(t, source)

	var snap Snapshot
	getJSON(t, ts.URL+"/stats", &snap)
	if snap.State != "handshake_complete" || !snap.Connected {
		t.Fatalf("unexpected state: %+v", snap)
	}
	want := traceimport.Statistics{BytesModified: 12, RemoteROM: "MOCK ROM"}
	if diff := cmp.Diff(want, snap.Statistics); diff != "" {
		t.Fatalf("statistics mismatch (-want +got):\n%s", diff)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)

	ts := newTestServer(t, &fakeSource{})
	observability.RecordImportEvent("exec_trace", "applied")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "snestrace_import_events_total") {
		t.Fatalf("metrics output missing import events")
	}
}

func TestStatsWebsocketPushesSnapshots(t *testing.T) {
	testlog.Start(t)

	source := &fakeSource{}
	source.set(tracelink.StateConnected, 1)
	ts := newTestServer(t, source)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stats/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first snapshot: %v", err)
	}
	if first.State != "connected" || first.Statistics.BytesModified != 1 {
		t.Fatalf("unexpected first snapshot: %+v", first)
	}

	source.set(tracelink.StateHandshakeComplete, 5)
	for {
		var snap Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("read pushed snapshot: %v", err)
		}
		if snap.Statistics.BytesModified == 5 {
			if !snap.Connected {
				t.Fatalf("expected connected snapshot: %+v", snap)
			}
			return
		}
	}
}

func TestBroadcasterCloseDropsClients(t *testing.T) {
	testlog.Start(t)

	source := &fakeSource{}
	s := New(source, Options{PushInterval: time.Hour})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stats/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.broadcaster.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Close()
	if n := s.broadcaster.ClientCount(); n != 0 {
		t.Fatalf("client count=%d after close", n)
	}
}

func TestTokenGuardsStatsButNotHealth(t *testing.T) {
	testlog.Start(t)

	s := New(&fakeSource{}, Options{PushInterval: time.Hour, Token: "secret"})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})

	tests := []struct {
		name string
		path string
		auth string
		want int
	}{
		{name: "health open", path: "/health", want: http.StatusOK},
		{name: "stats denied", path: "/stats", want: http.StatusUnauthorized},
		{name: "metrics denied", path: "/metrics", want: http.StatusUnauthorized},
		{name: "stats bearer", path: "/stats", auth: "Bearer secret", want: http.StatusOK},
		{name: "stats query", path: "/stats?token=secret", want: http.StatusOK},
		{name: "stats wrong", path: "/stats", auth: "Bearer nope", want: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+tc.path, nil)
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET %s: %v", tc.path, err)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status=%d want %d", resp.StatusCode, tc.want)
			}
		})
	}
}
