// internal/pipeline/emitter.go
package pipeline

import (
	"sync"
	"time"
)

// ProgressEvent is one observable step of a run. Seq increases
// monotonically within a run; consumers can detect gaps but the pipeline
// never blocks on a slow consumer.
type ProgressEvent struct {
	Seq       int       `json:"seq"`
	Stage     string    `json:"stage"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressEmitter receives progress events and the final report. Emission
// is fire-and-forget: implementations must not block the pipeline, and
// the pipeline ignores delivery failures.
type ProgressEmitter interface {
	StageCompleted(event ProgressEvent)
	ReportReady(report *Report)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) StageCompleted(ProgressEvent) {}
func (NopEmitter) ReportReady(*Report)          {}

// progressSequencer stamps events with a per-run monotonic sequence
// number before handing them to the emitter. Stages run on one goroutine,
// but the short-form loops emit from two, so the counter is guarded.
type progressSequencer struct {
	emitter ProgressEmitter

	mu  sync.Mutex
	seq int
}

func newProgressSequencer(emitter ProgressEmitter) *progressSequencer {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &progressSequencer{emitter: emitter}
}

func (p *progressSequencer) emit(stage, label string) {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	p.emitter.StageCompleted(ProgressEvent{
		Seq:       seq,
		Stage:     stage,
		Label:     label,
		Timestamp: time.Now().UTC(),
	})
}
