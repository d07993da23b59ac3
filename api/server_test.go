package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurodash-agent/models"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type staticSource struct {
	snap atomic.Pointer[models.Snapshot]
}

func (s *staticSource) Current() *models.Snapshot { return s.snap.Load() }

func testSnapshot(seq uint64) *models.Snapshot {
	ts := epoch.Add(time.Duration(seq) * time.Second)
	return &models.Snapshot{
		Sample: &models.Sample{
			Seq:       seq,
			Timestamp: ts,
			System: models.SystemMetrics{
				CPU:    models.CPUInfo{TotalPct: 12.5},
				Memory: models.MemoryInfo{UsedBytes: 512, TotalBytes: 1024, UsedPct: 50, SwapTotalBytes: 2048},
				Disks:  []models.DiskUsage{{Path: "/", UsedPct: 40}},
			},
		},
		History: map[string][]models.Point{
			"cpu_total_pct":  {{Timestamp: ts.Add(-time.Second), Value: 10}, {Timestamp: ts, Value: 12.5}},
			"mem_used_bytes": {{Timestamp: ts.Add(-time.Second), Value: 500}, {Timestamp: ts, Value: 512}},
		},
		Host:         models.HostInfo{Hostname: "box", LogicalCores: 8},
		Capabilities: models.CapabilitySet{AcceleratorBackend: "none"},
	}
}

func newTestServer(t *testing.T) (*Server, *staticSource) {
	t.Helper()
	src := &staticSource{}
	return NewServer(testr.New(t), "127.0.0.1:0", src,
		WithVersion("1.2.3"), WithPollInterval(5*time.Millisecond)), src
}

func get(t *testing.T, h http.Handler, target string) (*http.Response, []byte) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestSnapshotBeforeFirstTick(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := get(t, srv.Handler(), "/api/snapshot")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), `"error"`)

	resp, _ = get(t, srv.Handler(), "/api/history?channel=cpu_total_pct")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSnapshot(t *testing.T) {
	srv, src := newTestServer(t)
	src.snap.Store(testSnapshot(3))

	for _, path := range []string{"/api/snapshot", "/api/full_stats"} {
		resp, body := get(t, srv.Handler(), path)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		raw := string(body)
		assert.Contains(t, raw, `"accelerators":[]`)
		assert.Contains(t, raw, `"processes":[]`)
		assert.Contains(t, raw, `"containers":[]`)
		assert.Contains(t, raw, `"per_core_pct":[]`)

		var got SnapshotResponse
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, uint64(3), got.Seq)
		assert.Equal(t, 12.5, got.CPU.TotalPct)
		assert.Equal(t, uint64(512), got.Mem.UsedBytes)
		assert.Equal(t, uint64(2048), got.Swap.TotalBytes)
		assert.Equal(t, "box", got.Host.Hostname)
		assert.Equal(t, []float64{10, 12.5}, got.History["cpu_total_pct"])
		assert.Equal(t, []float64{500, 512}, got.History["mem_used_bytes"])
		require.Len(t, got.HistoryTimestamps, 2)
		assert.True(t, got.HistoryTimestamps[1].Equal(got.Timestamp))
		assert.NotNil(t, got.Misses)
	}
}

func TestHistory(t *testing.T) {
	srv, src := newTestServer(t)
	src.snap.Store(testSnapshot(1))

	resp, body := get(t, srv.Handler(), "/api/history?channel=mem_used_bytes")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got HistoryResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "mem_used_bytes", got.Channel)
	require.Len(t, got.Points, 2)
	assert.Equal(t, 512.0, got.Points[1].Value)

	resp, _ = get(t, srv.Handler(), "/api/history?channel=gpu9_load_pct")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, srv.Handler(), "/api/history")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, src := newTestServer(t)

	_, body := get(t, srv.Handler(), "/healthz")
	assert.JSONEq(t, `{"status":"ok","version":"1.2.3","seq":0}`, string(body))

	src.snap.Store(testSnapshot(7))
	_, body = get(t, srv.Handler(), "/healthz")
	assert.JSONEq(t, `{"status":"ok","version":"1.2.3","seq":7}`, string(body))
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/snapshot", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStream(t *testing.T) {
	srv, src := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	src.snap.Store(testSnapshot(1))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first SnapshotResponse
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(1), first.Seq)
	assert.Empty(t, first.Accelerators)

	src.snap.Store(testSnapshot(2))
	var second SnapshotResponse
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, uint64(2), second.Seq)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestStreamRefusedAfterShutdown(t *testing.T) {
	srv, src := newTestServer(t)
	src.snap.Store(testSnapshot(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	resp, body := get(t, srv.Handler(), "/api/stream")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "shutting down")
}

func TestShutdownWithConcurrentStreams(t *testing.T) {
	srv, src := newTestServer(t)
	src.snap.Store(testSnapshot(1))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	wg.Wait()
}

func TestStartAndShutdown(t *testing.T) {
	srv, src := newTestServer(t)
	src.snap.Store(testSnapshot(1))
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestStartBindFailure(t *testing.T) {
	first, _ := newTestServer(t)
	require.NoError(t, first.Start())
	defer first.Shutdown(context.Background())

	second := NewServer(testr.New(t), first.Addr(), &staticSource{})
	assert.Error(t, second.Start())
}
