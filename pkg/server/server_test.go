package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/events"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

type stubResearcher struct{ err error }

func (r stubResearcher) DiscoverSignal(context.Context, string) (*pipeline.SignalResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.SignalResult{
		Signal:          pipeline.ExternalSignal{Title: "A signal"},
		ConfidenceScore: 0.9,
	}, nil
}

type stubGap struct{}

func (stubGap) AnalyzeGaps(context.Context, string, pipeline.ExternalSignal) (*pipeline.GapAnalysis, error) {
	return &pipeline.GapAnalysis{Summary: "gap"}, nil
}

type stubBrief struct{}

func (stubBrief) BuildBrief(context.Context, string, pipeline.ExternalSignal, pipeline.GapAnalysis) (*pipeline.StrategyBrief, error) {
	return &pipeline.StrategyBrief{ChosenAngle: "angle", CoreThesis: "thesis"}, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateDraft(_ context.Context, req pipeline.GenerateRequest) (pipeline.Draft, error) {
	return pipeline.Draft{Content: fmt.Sprintf("%s draft %d", req.Asset, req.DraftNumber)}, nil
}

type stubCritic struct{}

func (stubCritic) Critique(_ context.Context, asset pipeline.AssetType, draft pipeline.Draft) (*pipeline.CritiqueResult, error) {
	scores := make(pipeline.Scores)
	for _, d := range pipeline.Dimensions(asset) {
		scores[d] = 8.0
	}
	return &pipeline.CritiqueResult{Scores: scores, Feedback: "fine", DraftNumber: draft.Number}, nil
}

func testFactory(researcher pipeline.Researcher) EngineFactory {
	return func(emitter pipeline.ProgressEmitter) (*pipeline.Engine, error) {
		return pipeline.NewEngine(pipeline.Options{
			Researcher:   researcher,
			GapAnalyzer:  stubGap{},
			BriefBuilder: stubBrief{},
			Generators: map[pipeline.AssetType]pipeline.Generator{
				pipeline.AssetBlog:     stubGenerator{},
				pipeline.AssetLinkedIn: stubGenerator{},
				pipeline.AssetTwitter:  stubGenerator{},
			},
			Critic:              stubCritic{},
			Emitter:             emitter,
			ConfidenceThreshold: 0.5,
			GateThreshold:       7.0,
			MaxIterations:       2,
		})
	}
}

func newTestServer(t *testing.T, researcher pipeline.Researcher, nc *nats.Conn) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Port = 0
	return New(cfg, logging.NewNop(), events.NewRegistry(nc, nil), nc, testFactory(researcher), nil)
}

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, stubResearcher{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleRunBlocking(t *testing.T) {
	s := newTestServer(t, stubResearcher{}, nil)

	body := strings.NewReader(`{"keyword": "ai agents"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/run", body)
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"keyword":"ai agents"`)
	assert.Contains(t, rec.Body.String(), `"quality_gate_log"`)
}

func TestHandleRunBlocking_MissingKeyword(t *testing.T) {
	s := newTestServer(t, stubResearcher{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(`{"keyword": "  "}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "keyword is required")
}

func TestHandleRunBlocking_EngineFailure(t *testing.T) {
	s := newTestServer(t, stubResearcher{err: errors.New("collaborator down")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/run", strings.NewReader(`{"keyword": "ai agents"}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "collaborator down")
}

func TestHandleRunAsync(t *testing.T) {
	s := newTestServer(t, stubResearcher{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"keyword": "ai agents"}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted RunAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.RunID)

	require.Eventually(t, func() bool {
		run, err := s.registry.Get(accepted.RunID)
		return err == nil && run.Status == events.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	run, err := s.registry.Get(accepted.RunID)
	require.NoError(t, err)
	require.NotNil(t, run.Report)
	assert.False(t, run.Report.Aborted)
}

func TestHandleRunStatus_NotFound(t *testing.T) {
	s := newTestServer(t, stubResearcher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRunEvents_StreamsToCompletion(t *testing.T) {
	nc := startTestNATS(t)
	s := newTestServer(t, stubResearcher{}, nc)

	ts := httptest.NewServer(s.Echo())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"keyword": "ai agents"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted RunAccepted
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))

	stream, err := http.Get(ts.URL + "/api/runs/" + accepted.RunID + "/events")
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	sawCompleted := false
	scanner := bufio.NewScanner(stream.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if scanner.Text() == "event: completed" {
			sawCompleted = true
			break
		}
	}
	assert.True(t, sawCompleted, "stream never delivered the completed event")
}

func TestHandleRunEvents_UnknownRun(t *testing.T) {
	nc := startTestNATS(t)
	s := newTestServer(t, stubResearcher{}, nc)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/nope/events", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
