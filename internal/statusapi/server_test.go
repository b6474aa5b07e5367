package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/diagnostics"
	"github.com/renlocalizer/renlocalizer/internal/model"
	"github.com/renlocalizer/renlocalizer/internal/pipeline"
)

func pipelineTestConfig() *config.Config {
	cfg := config.Default()
	cfg.Translation.SourceLang = "english"
	cfg.Translation.TargetLang = "turkish"
	return cfg
}

type noopTranslator struct{}

func (noopTranslator) TranslateBatch(_ context.Context, reqs []model.TranslationRequest) []model.TranslationResult {
	out := make([]model.TranslationResult, len(reqs))
	for i, r := range reqs {
		out[i] = model.TranslationResult{TranslatedText: r.Text, Success: true, Metadata: r.Metadata}
	}
	return out
}

func TestHealthzReportsOK(t *testing.T) {
	orch := pipeline.New(nil, noopTranslator{}, nil, nil)
	srv := New(orch, nil, t.TempDir())
	ts := httptest.NewServer(srv.engine)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpointExposesPrometheusFormat(t *testing.T) {
	orch := pipeline.New(nil, noopTranslator{}, nil, nil)
	srv := New(orch, nil, t.TempDir())
	ts := httptest.NewServer(srv.engine)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDiagnosticsEndpointServesReport(t *testing.T) {
	gameDir := t.TempDir()
	report := model.DiagnosticReport{Files: []model.FileDiagnostic{{Path: "script.rpy", Extracted: 1, Translated: 1}}}
	require.NoError(t, diagnostics.WriteReport(gameDir, "turkish", report))

	orch := pipeline.New(nil, noopTranslator{}, nil, nil)
	srv := New(orch, nil, gameDir)
	ts := httptest.NewServer(srv.engine)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/diagnostics/turkish")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.DiagnosticReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Len(t, got.Files, 1)
	assert.Equal(t, "script.rpy", got.Files[0].Path)
}

func TestEventsEndpointStreamsStageChanges(t *testing.T) {
	gameDir := filepath.Join(t.TempDir(), "game")
	require.NoError(t, os.MkdirAll(gameDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "script.rpy"), []byte("label start:\n    e \"Hi.\"\n"), 0o644))

	cfg := pipelineTestConfig()
	orch := pipeline.New(cfg, noopTranslator{}, nil, nil)
	srv := New(orch, nil, gameDir)
	ts := httptest.NewServer(srv.engine)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"

	started := make(chan <-chan pipeline.Event, 1)
	go func() {
		orch.RunWithStartSignal(context.Background(), gameDir, started)
	}()
	<-started // wait until the event channel exists before connecting

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var gotStage bool
	for i := 0; i < 20; i++ {
		var e pipeline.Event
		if err := conn.ReadJSON(&e); err != nil {
			break
		}
		if e.Kind == pipeline.EventStageChanged {
			gotStage = true
			break
		}
	}
	assert.True(t, gotStage)
}
