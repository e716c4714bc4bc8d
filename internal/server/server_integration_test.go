//go:build integration

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trustgate/trustgate/internal/advisor"
	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/evidence"
	"github.com/trustgate/trustgate/internal/ledger"
	"github.com/trustgate/trustgate/internal/safety"
	"github.com/trustgate/trustgate/internal/sanitize"
	"github.com/trustgate/trustgate/internal/schema"
	"github.com/trustgate/trustgate/internal/upstream"
)

// testServer creates a fully wired Server on a random port.
func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	cfg := config.Defaults()
	cfg.Server.Port = 0 // auto-select
	cfg.Server.Bind = "127.0.0.1"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(nil, logger)
	gate := safety.NewGate()
	client := upstream.NewClient(&stubTransport{
		payloads: map[string]map[string]any{
			"get_risk_findings": {
				"summary":    "exposed database",
				"confidence": 0.8,
			},
		},
	}, l, nil, upstream.DefaultOptions(), logger)
	a := advisor.New(
		sanitize.New(logger),
		client,
		gate,
		evidence.NewBuilder(l),
		schema.NewValidator(gate),
		l,
		logger,
	)

	srv, err := NewServer(cfg, a, logger)
	require.NoError(t, err)

	go func() { _ = srv.Start() }()
	time.Sleep(100 * time.Millisecond)

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", srv.Port())

	t.Cleanup(func() {
		_ = srv.Shutdown(t.Context())
	})

	return srv, baseURL
}

func TestServerHealth(t *testing.T) {
	_, baseURL := testServer(t)

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServerAdviseRoundTrip(t *testing.T) {
	_, baseURL := testServer(t)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(validRequest()))

	resp, err := http.Post(baseURL+"/v1/advise", "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out advisor.AdviseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "exposed database", out.Summary)
	assert.NotEmpty(t, out.Citations)
}

func TestServerMetricsExposed(t *testing.T) {
	_, baseURL := testServer(t)

	resp, err := http.Get(baseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
