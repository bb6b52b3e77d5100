package stream

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Run is the registry's record of one in-flight query. The classifier flags
// are only touched by the run's single producer goroutine.
type Run struct {
	ID    string
	Query string
	Model string

	// FinalMode is set once a FINAL: marker has been seen.
	FinalMode bool
	// FinalAnswerSent records that a non-empty final_answer was emitted.
	FinalAnswerSent bool
}

// queue is an unbounded FIFO with a blocking pop. Pushing never blocks so a
// producer can never be stalled by a slow or absent consumer.
type queue struct {
	mu     sync.Mutex
	events []Event
	wake   chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) push(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop returns the oldest event, waiting up to wait for one to arrive.
// ok is false when the wait elapsed with the queue still empty.
func (q *queue) pop(wait time.Duration) (Event, bool) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			ev := q.events[0]
			q.events = q.events[1:]
			q.mu.Unlock()
			return ev, true
		}
		q.mu.Unlock()
		select {
		case <-q.wake:
		case <-deadline.C:
			return Event{}, false
		}
	}
}

type entry struct {
	run *Run
	q   *queue
}

// Registry owns the active runs and their event queues. Events for unknown
// runs are dropped silently; a run disappears when its consumer closes.
type Registry struct {
	mu     sync.Mutex
	runs   map[string]*entry
	logger *log.Logger
	now    func() time.Time

	// OnEmit, when set, observes every stamped event. Used for metrics.
	OnEmit func(Event)
}

func NewRegistry() *Registry {
	return &Registry{
		runs:   map[string]*entry{},
		logger: log.New(log.Writer(), "[STREAM] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Register creates the run record and its queue. Callers mint fresh IDs;
// re-registering an existing ID replaces the old run.
func (r *Registry) Register(runID, query, model string) *Run {
	run := &Run{ID: runID, Query: query, Model: model}
	r.mu.Lock()
	r.runs[runID] = &entry{run: run, q: newQueue()}
	r.mu.Unlock()
	return run
}

// Emit stamps the event with the run ID and current timestamp and appends it
// to the run's queue. Emitting to an unknown run is a no-op.
func (r *Registry) Emit(runID string, ev Event) {
	r.mu.Lock()
	e, ok := r.runs[runID]
	now := r.now()
	r.mu.Unlock()
	if !ok {
		return
	}
	ev.RunID = runID
	ev.Timestamp = now.UTC().Format(time.RFC3339Nano)
	e.q.push(ev)
	if r.OnEmit != nil {
		r.OnEmit(ev)
	}
}

// Attach returns the sole consumer handle for a run's queue.
func (r *Registry) Attach(runID string) (*Consumer, error) {
	r.mu.Lock()
	e, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown run %s", runID)
	}
	return &Consumer{reg: r, runID: runID, q: e.q}, nil
}

// Active reports how many runs are currently registered.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func (r *Registry) release(runID string) {
	r.mu.Lock()
	_, ok := r.runs[runID]
	delete(r.runs, runID)
	r.mu.Unlock()
	if ok {
		r.logger.Printf("run %s released", runID)
	}
}

// Consumer drains one run's queue. Close is the single cleanup path, called
// both after a terminal event and on client disconnect.
type Consumer struct {
	reg   *Registry
	runID string
	q     *queue
}

// Next returns the next event, blocking up to wait. When nothing arrives in
// time a synthetic heartbeat event is returned instead.
func (c *Consumer) Next(wait time.Duration) Event {
	if ev, ok := c.q.pop(wait); ok {
		return ev
	}
	return heartbeat(c.reg.now(), c.runID)
}

// Close deregisters the run. Subsequent Emit calls for it become no-ops.
func (c *Consumer) Close() {
	c.reg.release(c.runID)
}
