// ABOUTME: Tests for the Gateway lifecycle: startup, health endpoints, reload, and shutdown
// ABOUTME: Writes real SQLite snapshots to a temp dir and serves them over a live listener

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hub-gateway/internal/config"
	hubsnap "github.com/2389/hub-gateway/internal/snapshot"
	"github.com/2389/hub-gateway/internal/store"
)

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig creates a config serving a snapshot file on a free port.
func testConfig(t *testing.T, dbPath string) *config.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := config.Default()
	cfg.Server.HTTPAddr = addr
	cfg.Database.Path = dbPath
	cfg.RateLimit.Enabled = false
	return &cfg
}

// writeSnapshot writes data to path the way the build command does
func writeSnapshot(t *testing.T, path string, data store.Dataset) {
	t.Helper()
	require.NoError(t, hubsnap.Write(context.Background(), path, &data))
}

// withExtraPlugin returns data plus one more extractor
func withExtraPlugin(data store.Dataset) store.Dataset {
	data.Plugins = append(data.Plugins, store.PluginRow{
		ID: "extractors.tap-extra", PluginType: "extractors", Name: "tap-extra",
		DefaultVariantID: "extractors.tap-extra.meltanolabs",
	})
	data.Variants = append(data.Variants, store.VariantRow{
		ID: "extractors.tap-extra.meltanolabs", PluginID: "extractors.tap-extra",
		Name: "meltanolabs", Namespace: "tap_extra",
	})
	return data
}

func TestGatewayNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	writeSnapshot(t, path, apiDataset())
	cfg := testConfig(t, path)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.config != cfg {
		t.Error("gateway config mismatch")
	}
	if gw.httpServer == nil {
		t.Error("httpServer should not be nil")
	}
	if gw.openStore == nil {
		t.Error("openStore should be set for file-backed gateways")
	}
}

func TestGatewayNew_MissingSnapshot(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing.db"))

	_, err := New(cfg, testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable), "got %v", err)
}

func TestGatewayRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	writeSnapshot(t, path, apiDataset())
	cfg := testConfig(t, path)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	base := "http://" + cfg.Server.HTTPAddr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + apiPrefix + "/plugins/index")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tap-demo")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHandleHealth(t *testing.T) {
	gw := newTestGateway(t, testGatewayConfig(), apiDataset())

	r, _ := http.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleReady(t *testing.T) {
	gw := newTestGateway(t, testGatewayConfig(), apiDataset())

	require.Equal(t, http.StatusOK, get(t, gw, "/plugins/index").Code)
	require.Equal(t, http.StatusOK, get(t, gw, "/plugins/index").Code)

	r, _ := http.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body readiness
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, 3, body.Plugins)
	assert.WithinDuration(t, time.Now(), body.LoadedAt, time.Minute)
	assert.GreaterOrEqual(t, body.AgeSecs, int64(0))
	assert.Equal(t, 1, body.Cache.Entries)
	assert.Equal(t, int64(1), body.Cache.Builds)
	assert.Equal(t, int64(1), body.Cache.Hits)
}

func TestHandleReady_ClosedStore(t *testing.T) {
	s := store.NewMemoryStore(apiDataset())
	gw, err := newGateway(testGatewayConfig(), s, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	r, _ := http.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, r)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	writeSnapshot(t, path, apiDataset())
	cfg := testConfig(t, path)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	before := get(t, gw, "/plugins/extractors/index")
	require.Equal(t, http.StatusOK, before.Code)
	assert.NotContains(t, before.Body.String(), "tap-extra")

	writeSnapshot(t, path, withExtraPlugin(apiDataset()))
	require.NoError(t, gw.Reload(context.Background()))

	after := get(t, gw, "/plugins/extractors/index")
	require.Equal(t, http.StatusOK, after.Code)
	assert.Contains(t, after.Body.String(), "tap-extra")
	assert.NotEqual(t, before.Header().Get("ETag"), after.Header().Get("ETag"))

	// The old tag no longer matches once the content changed.
	stale := do(t, gw, testRequest{
		path:    "/plugins/extractors/index",
		headers: map[string]string{"If-None-Match": before.Header().Get("ETag")},
	})
	assert.Equal(t, http.StatusOK, stale.Code)
}

func TestReload_UnchangedContentKeepsETag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	writeSnapshot(t, path, apiDataset())
	cfg := testConfig(t, path)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	before := get(t, gw, "/plugins/index")
	writeSnapshot(t, path, apiDataset())
	require.NoError(t, gw.Reload(context.Background()))
	after := get(t, gw, "/plugins/index")

	assert.Equal(t, before.Header().Get("ETag"), after.Header().Get("ETag"))
}

func TestReload_BadFileKeepsServing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.db")
	writeSnapshot(t, path, apiDataset())
	cfg := testConfig(t, path)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	cfg.Database.Path = filepath.Join(dir, "gone.db")
	err = gw.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))

	w := get(t, gw, "/plugins/index")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReload_InFlightRequestKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	writeSnapshot(t, path, apiDataset())
	cfg := testConfig(t, path)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	held := gw.snapshots.acquire()

	writeSnapshot(t, path, withExtraPlugin(apiDataset()))
	require.NoError(t, gw.Reload(context.Background()))

	// The held snapshot still answers; retirement waits for release.
	_, err = held.store.GetPlugin(context.Background(), "extractors", "tap-demo")
	assert.NoError(t, err)
	held.release()

	assert.Eventually(t, func() bool {
		held.mu.RLock()
		defer held.mu.RUnlock()
		return held.retired
	}, 2*time.Second, 10*time.Millisecond)
}

// withDefectiveRows returns data plus a plugin and a variant missing their names
func withDefectiveRows(data store.Dataset) store.Dataset {
	data.Plugins = append(data.Plugins, store.PluginRow{
		ID: "extractors.", PluginType: "extractors",
		DefaultVariantID: "extractors..meltanolabs",
	})
	data.Variants = append(data.Variants,
		store.VariantRow{ID: "extractors..meltanolabs", PluginID: "extractors.", Name: "meltanolabs", Namespace: "tap_broken"},
		store.VariantRow{ID: "extractors.tap-demo.", PluginID: "extractors.tap-demo", Namespace: "tap_demo"},
	)
	return data
}

func TestDefectiveRowsSkippedFromListings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	writeSnapshot(t, path, withDefectiveRows(apiDataset()))
	cfg := testConfig(t, path)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	memory := newTestGateway(t, testGatewayConfig(), withDefectiveRows(apiDataset()))

	for name, g := range map[string]*Gateway{"sqlite": gw, "memory": memory} {
		t.Run(name, func(t *testing.T) {
			w := get(t, g, "/plugins/index")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var index map[string]map[string]struct {
				Variants map[string]json.RawMessage `json:"variants"`
			}
			decodeJSON(t, w, &index)
			assert.NotContains(t, index["extractors"], "")
			require.Contains(t, index["extractors"], "tap-demo")
			assert.Len(t, index["extractors"]["tap-demo"].Variants, 2)

			assert.Equal(t, http.StatusOK, get(t, g, "/plugins/extractors/index").Code)
			assert.Equal(t, http.StatusOK, get(t, g, "/plugins/made-with-sdk").Code)
			assert.Equal(t, http.StatusOK, get(t, g, "/plugins/extractors/tap-demo").Code)
			assert.Equal(t, http.StatusOK, get(t, g, "/plugins/extractors/tap-demo/default").Code)
		})
	}
}

func TestWatchSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	writeSnapshot(t, path, apiDataset())
	cfg := testConfig(t, path)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := gw.watchSnapshot(ctx, path)
	require.NoError(t, err)
	gw.watcher = w

	writeSnapshot(t, path, withExtraPlugin(apiDataset()))

	assert.Eventually(t, func() bool {
		return get(t, gw, "/plugins/extractors/tap-extra").Code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func TestShutdown_ClosesStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	writeSnapshot(t, path, apiDataset())
	cfg := testConfig(t, path)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	snap := gw.snapshots.current.Load()
	require.NoError(t, gw.Shutdown(context.Background()))

	_, err = snap.store.ListPlugins(context.Background())
	assert.Error(t, err, "store should be closed after shutdown")
	assert.True(t, snap.retired)
}
