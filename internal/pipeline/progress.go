package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/veridex/veridex/internal/model"
)

// Sink receives progress events in emission order.
type Sink func(model.ProgressEvent)

// Emitter assigns strictly increasing sequence numbers to a job's
// progress events. One emitter per job; safe for concurrent use.
type Emitter struct {
	seq  atomic.Uint64
	sink Sink
}

// NewEmitter creates an emitter. A nil sink discards events.
func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = func(model.ProgressEvent) {}
	}
	return &Emitter{sink: sink}
}

// Emit publishes one event. Sequence numbers never repeat and never go
// backwards, so observers can replay the log in order.
func (e *Emitter) Emit(state model.JobState, progress int, level, format string, args ...any) {
	e.sink(model.ProgressEvent{
		Seq:      e.seq.Add(1),
		State:    state,
		Progress: progress,
		Level:    level,
		Message:  fmt.Sprintf(format, args...),
	})
}
