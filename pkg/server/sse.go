// pkg/server/sse.go
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/contentd/internal/events"
)

// sseHeartbeat keeps proxies from timing out idle streams.
const sseHeartbeat = 30 * time.Second

// handleRunEvents streams a run's progress via Server-Sent Events.
//
// The handler subscribes to the run's NATS subjects and relays each
// message as one SSE event, typed by the last subject token:
//
//	event: progress
//	data: {"seq":3,"stage":"strategy_brief","label":"Strategy brief completed"}
//
//	event: completed
//	data: {"id":"...","status":"completed","report":{...}}
//
// The stream closes after the completed or error event, or when the
// client disconnects. A run that already finished gets its terminal
// event immediately.
func (s *Server) handleRunEvents(c echo.Context) error {
	runID := c.Param("id")

	run, err := s.registry.Get(runID)
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "run not found"})
	}
	if s.nc == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "event stream unavailable"})
	}

	// Subscribe before checking status so no terminal event is lost in
	// between.
	msgChan := make(chan *nats.Msg, 16)
	sub, err := s.nc.ChanSubscribe(events.Subject(runID, "*"), msgChan)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if run.Status != events.StatusRunning {
		return s.writeTerminalEvent(c, run)
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			kind := eventKind(msg.Subject)
			if kind == "" {
				continue
			}
			if err := writeSSE(c, kind, msg.Data); err != nil {
				return err
			}
			if kind == events.KindCompleted || kind == events.KindError {
				return nil
			}

		case <-ticker.C:
			if _, err := fmt.Fprint(c.Response(), ": heartbeat\n\n"); err != nil {
				return err
			}
			c.Response().Flush()

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// writeTerminalEvent synthesizes the terminal event for a run that
// finished before the client connected.
func (s *Server) writeTerminalEvent(c echo.Context, run events.Run) error {
	kind := events.KindCompleted
	payload := map[string]any{
		"id":     run.ID,
		"status": run.Status,
		"report": run.Report,
	}
	if run.Status == events.StatusFailed {
		kind = events.KindError
		payload = map[string]any{"id": run.ID, "error": run.Error}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeSSE(c, kind, data)
}

func writeSSE(c echo.Context, event string, data []byte) error {
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// eventKind extracts the event type from a runs.{id}.{kind} subject.
func eventKind(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-1]
}
