// Package events tracks pipeline runs and publishes their progress over
// NATS, one subject space per run, so any number of SSE consumers can
// follow a run without touching the pipeline.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// RunStatus is the lifecycle state of a tracked run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusAborted   RunStatus = "aborted"
	StatusFailed    RunStatus = "failed"
)

// Event kinds appearing as the last subject token: runs.{id}.{kind}.
const (
	KindStarted   = "started"
	KindProgress  = "progress"
	KindCompleted = "completed"
	KindError     = "error"
)

// Run is one tracked pipeline execution.
type Run struct {
	ID         string           `json:"id"`
	Keyword    string           `json:"keyword"`
	Status     RunStatus        `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Report     *pipeline.Report `json:"report,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// ErrNotFound is returned by Get for unknown run IDs.
var ErrNotFound = fmt.Errorf("run not found")

// Registry tracks runs and owns the NATS publishing side. Safe for
// concurrent use.
type Registry struct {
	nc     *nats.Conn
	logger *logging.Logger

	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRegistry creates a registry publishing on nc. A nil connection is
// allowed; runs are then tracked without event publication.
func NewRegistry(nc *nats.Conn, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		nc:     nc,
		logger: logger.Named("events"),
		runs:   make(map[string]*Run),
	}
}

// Start registers a new run and publishes its started event.
func (r *Registry) Start(keyword string) *Run {
	run := &Run{
		ID:        uuid.NewString(),
		Keyword:   keyword,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()

	r.publish(run.ID, KindStarted, map[string]string{
		"id":      run.ID,
		"keyword": keyword,
	})
	return run
}

// Get returns a snapshot of the run with the given ID.
func (r *Registry) Get(id string) (Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return *run, nil
}

// Complete records a finished run and publishes the terminal event with
// the full report.
func (r *Registry) Complete(id string, report *pipeline.Report) {
	status := StatusCompleted
	if report.Aborted {
		status = StatusAborted
	}
	r.finish(id, status, report, "")
	r.publish(id, KindCompleted, map[string]any{
		"id":     id,
		"status": status,
		"report": report,
	})
}

// Fail records a failed run and publishes the error event.
func (r *Registry) Fail(id string, err error) {
	r.finish(id, StatusFailed, nil, err.Error())
	r.publish(id, KindError, map[string]string{
		"id":    id,
		"error": err.Error(),
	})
}

func (r *Registry) finish(id string, status RunStatus, report *pipeline.Report, errMsg string) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return
	}
	run.Status = status
	run.FinishedAt = &now
	run.Report = report
	run.Error = errMsg
}

// Emitter returns a pipeline emitter publishing this run's progress.
func (r *Registry) Emitter(runID string) pipeline.ProgressEmitter {
	return &runEmitter{registry: r, runID: runID}
}

// Subject returns the NATS subject for one event kind of a run. The SSE
// bridge subscribes to Subject(id, "*").
func Subject(runID, kind string) string {
	return fmt.Sprintf("runs.%s.%s", runID, kind)
}

// publish is fire-and-forget: a failed publish is logged, never
// propagated into the pipeline.
func (r *Registry) publish(runID, kind string, payload any) {
	if r.nc == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn(context.Background(), "marshal event failed",
			zap.String("run_id", runID), zap.String("kind", kind), zap.Error(err))
		return
	}
	if err := r.nc.Publish(Subject(runID, kind), data); err != nil {
		r.logger.Warn(context.Background(), "publish event failed",
			zap.String("run_id", runID), zap.String("kind", kind), zap.Error(err))
	}
}

// runEmitter adapts the registry to the pipeline's emitter interface for
// one run.
type runEmitter struct {
	registry *Registry
	runID    string
}

func (e *runEmitter) StageCompleted(ev pipeline.ProgressEvent) {
	e.registry.publish(e.runID, KindProgress, ev)
}

// ReportReady is a no-op: the terminal event is published by Complete,
// which also records the run's final status.
func (e *runEmitter) ReportReady(*pipeline.Report) {}
