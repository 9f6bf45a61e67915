// pkg/server/handlers.go
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/events"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// RunRequest is the body for both run submission endpoints.
type RunRequest struct {
	Keyword string `json:"keyword"`
}

// RunAccepted is the response for POST /api/runs.
type RunAccepted struct {
	RunID string `json:"run_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleRunBlocking executes the whole pipeline in the request and
// returns the final report. Aborted runs are still 200; only stage
// failures map to 502.
func (s *Server) handleRunBlocking(c echo.Context) error {
	req, ok := bindRunRequest(c)
	if !ok {
		return nil
	}

	run := s.registry.Start(req.Keyword)
	ctx := logging.WithRunID(c.Request().Context(), run.ID)

	report, err := s.executeRun(ctx, run.ID, req.Keyword)
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, report)
}

// handleRunAsync starts the pipeline in the background and returns the
// run ID for status polling and the SSE stream.
func (s *Server) handleRunAsync(c echo.Context) error {
	req, ok := bindRunRequest(c)
	if !ok {
		return nil
	}

	run := s.registry.Start(req.Keyword)

	// The run outlives the request; only server shutdown cancels it.
	go func() {
		ctx := logging.WithRunID(context.Background(), run.ID)
		if _, err := s.executeRun(ctx, run.ID, req.Keyword); err != nil {
			s.logger.Error(ctx, "async run failed", zap.Error(err))
		}
	}()

	return c.JSON(http.StatusAccepted, RunAccepted{RunID: run.ID})
}

// executeRun drives one run through a freshly built engine and records
// its terminal state in the registry and metrics.
func (s *Server) executeRun(ctx context.Context, runID, keyword string) (*pipeline.Report, error) {
	engine, err := s.newEngine(s.registry.Emitter(runID))
	if err != nil {
		s.registry.Fail(runID, err)
		return nil, err
	}

	report, err := engine.Run(ctx, keyword)
	if err != nil {
		s.registry.Fail(runID, err)
		return nil, err
	}

	s.registry.Complete(runID, report)
	if s.recorder != nil {
		for _, dec := range report.GateLog {
			s.recorder.RecordGate(string(dec.Asset), dec.Passed)
		}
	}
	return report, nil
}

func (s *Server) handleRunStatus(c echo.Context) error {
	run, err := s.registry.Get(c.Param("id"))
	if errors.Is(err, events.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "run not found"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, run)
}

// bindRunRequest decodes and validates the body, writing the 400
// response itself when validation fails.
func bindRunRequest(c echo.Context) (RunRequest, bool) {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		_ = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return req, false
	}
	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Keyword == "" {
		_ = c.JSON(http.StatusBadRequest, errorResponse{Error: "keyword is required"})
		return req, false
	}
	return req, true
}
