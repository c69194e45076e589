package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/config"
)

func demoConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Indexer.DemoMode = true
	cfg.Indexer.DemoDelay = 10 * time.Millisecond
	cfg.Indexer.WorkDir = t.TempDir()
	cfg.Indexer.QueueDepth = 8
	cfg.Indexer.LogLines = 50
	cfg.Storage.Backend = "memory"
	cfg.Progress.Enabled = true
	cfg.Upload.MaxBytes = 1 << 20
	return cfg
}

func TestBuildAndServeDemoJob(t *testing.T) {
	t.Parallel()

	app, err := build(context.Background(), demoConfig(t), zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, ln) }()

	resp, err := http.Post(base+"/api/submit-url", "application/json", strings.NewReader(`{"url":"https://x.com"}`))
	require.NoError(t, err)
	var submitted struct {
		Success   bool   `json:"success"`
		RequestID string `json:"requestId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.True(t, submitted.Success)

	type statusBody struct {
		Request struct {
			Status  string `json:"status"`
			Results *struct {
				Successful int    `json:"successful"`
				Note       string `json:"note"`
			} `json:"results"`
		} `json:"request"`
	}
	var got statusBody
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/status/" + submitted.RequestID)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		got = statusBody{}
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			return false
		}
		return got.Request.Status == "completed"
	}, 5*time.Second, 20*time.Millisecond)
	require.NotNil(t, got.Request.Results)
	assert.Equal(t, 1, got.Request.Results.Successful)
	assert.Contains(t, got.Request.Results.Note, "demo mode")

	resp, err = http.Get(base + "/api/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "memory", health["database"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestBuildRejectsMissingCommand(t *testing.T) {
	t.Parallel()

	cfg := demoConfig(t)
	cfg.Indexer.DemoMode = false
	cfg.Indexer.Command = ""

	_, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.ErrorContains(t, err, "orchestrator init failed")
}

func TestBuildLocalBlobStore(t *testing.T) {
	t.Parallel()

	cfg := demoConfig(t)
	cfg.Storage.Backend = "local"
	cfg.Storage.Local.BaseDir = t.TempDir()
	cfg.Progress.Enabled = false

	app, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, app.Handler())
	app.Close(context.Background())
}
