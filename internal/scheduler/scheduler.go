// Package scheduler implements the concurrent pipeline core (C6): a
// directed graph of steps, executed over a fixed-size worker pool, honoring
// per-step sequential/parallel policy and per-step FIFO ordering, and
// propagating EOF to drive topological finalization.
package scheduler

import (
	"sync"

	"github.com/loganrosen/adapterremoval/internal/pipeline"
)

// Step is the contract every pipeline stage implements (design note:
// "inheritance of steps... re-architected as... a trait/interface object").
type Step interface {
	// Process consumes one chunk and returns zero or more (next step id,
	// chunk) pairs to route onward. Returning no pairs is legal (e.g. a
	// compressor still buffering data).
	Process(chunk pipeline.Chunk) ([]Routed, error)
	// Finalize is invoked once, after all upstream EOF chunks have been
	// consumed, to flush buffered state and release resources.
	Finalize() error
}

// Routed pairs a chunk with the id of the step it should be delivered to
// next.
type Routed struct {
	StepID int
	Chunk  pipeline.Chunk
}

// stepEntry holds per-step scheduling metadata alongside the registered
// Step implementation.
type stepEntry struct {
	id       int
	step     Step
	name     string
	ordered  bool
	// producers is the number of distinct upstream steps expected to send
	// this step an EOF chunk before it can be considered terminated.
	producers int

	nextSeq     uint64 // next arrival sequence this (ordered) step expects
	arrivalSeq  uint64 // sequence assigned to the next chunk routed to this step
	pending     map[uint64]pipeline.Chunk
	eofsSeen    int
	terminated  bool
	finalized   bool

	// nextRelease and releasePending serialize this step's own *output*
	// (its calls to enqueue() for whatever it routes downstream) back into
	// the order its inputs were admitted in, regardless of which worker's
	// Process() call happens to finish first. Unlike pending (above, which
	// reorders arrivals *into* this step), these track departures *from*
	// it: a parallel (ordered=false) step can run several Process calls
	// concurrently, and a slow call for an early-admitted chunk must not
	// let a fast call for a later chunk enqueue its output first, or a
	// downstream ordered step would receive chunks out of true arrival
	// order.
	nextRelease    uint64
	releasePending map[uint64][]Routed
}

type queueItem struct {
	stepID int
	seq    uint64
	chunk  pipeline.Chunk
}

// Scheduler owns the step table, ready queue and worker pool that drive the
// pipeline's concurrent execution.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	steps map[int]*stepEntry
	edges map[int][]int // from -> []to, used for topological finalize order

	ready []queueItem

	busyWorkers int
	totalWorkers int
	stopped     bool
	err         error
}

// New creates an empty scheduler.
func New() *Scheduler {
	s := &Scheduler{
		steps: make(map[int]*stepEntry),
		edges: make(map[int][]int),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Register adds a step to the graph. producers is the number of distinct
// upstream steps that will each send exactly one EOF chunk to this step;
// pass 0 for the unique source step (the reader), which is seeded directly
// by Run.
func (s *Scheduler) Register(id int, name string, step Step, ordered bool, producers int) {
	s.steps[id] = &stepEntry{
		id:             id,
		step:           step,
		name:           name,
		ordered:        ordered,
		producers:      producers,
		pending:        make(map[uint64]pipeline.Chunk),
		releasePending: make(map[uint64][]Routed),
	}
}

// Connect records a graph edge from -> to, used purely to compute a
// topological finalize order; it does not affect dispatch.
func (s *Scheduler) Connect(from, to int) {
	s.edges[from] = append(s.edges[from], to)
}

// Run seeds the ready queue with a synthetic empty chunk routed to
// sourceStep (the reader) and drives execution with maxThreads workers. It
// returns false (with Err() set) if any worker observed an unhandled error.
func (s *Scheduler) Run(maxThreads, sourceStep int) bool {
	s.totalWorkers = maxThreads
	s.enqueue(sourceStep, &pipeline.ReadChunk{})

	var wg sync.WaitGroup
	wg.Add(maxThreads)
	for i := 0; i < maxThreads; i++ {
		go func() {
			defer wg.Done()
			s.workerLoop()
		}()
	}
	wg.Wait()

	s.finalizeAll()

	return s.err == nil
}

// Err returns the first error observed by any worker, if any.
func (s *Scheduler) Err() error { return s.err }

// InFlight reports the number of chunks currently queued for dispatch,
// buffered awaiting reorder, or being processed by a worker. The reader
// step (internal/steps.ReadStep) polls this to implement the soft
// back-pressure bound of spec.md §5: it declines to read and emit a new
// chunk while InFlight is above its configured threshold, so a slow
// downstream step causes the reader to stall rather than buffering the
// entire input in memory.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ready) + s.busyWorkers
	for _, e := range s.steps {
		n += len(e.pending)
	}
	return n
}

func (s *Scheduler) enqueue(stepID int, chunk pipeline.Chunk) {
	s.mu.Lock()
	entry := s.steps[stepID]
	seq := entry.arrivalSeq
	entry.arrivalSeq++
	s.ready = append(s.ready, queueItem{stepID: stepID, seq: seq, chunk: chunk})
	s.cond.Broadcast()
	s.mu.Unlock()
}

// workerLoop repeatedly claims a dispatchable (step, chunk) pair, runs it,
// and routes its output back onto the ready queue.
func (s *Scheduler) workerLoop() {
	for {
		item, entry, ok := s.claim()
		if !ok {
			return
		}

		routed, err := entry.step.Process(item.chunk)

		s.mu.Lock()
		s.busyWorkers--
		if err != nil {
			if s.err == nil {
				s.err = err
			}
			s.stopped = true
		}
		if entry.producers == 0 {
			// Source steps (e.g. the reader) have no upstream to deliver
			// them an EOF chunk; they self-terminate once they emit their
			// own EOF sentinel downstream.
			for _, r := range routed {
				if r.Chunk.IsEOF() {
					entry.terminated = true
					break
				}
			}
		} else if item.chunk.IsEOF() {
			entry.eofsSeen++
			if entry.eofsSeen >= entry.producers {
				entry.terminated = true
			}
		}
		if entry.ordered {
			entry.nextSeq = item.seq + 1
			s.promotePending(entry)
		}
		s.mu.Unlock()

		if err == nil {
			s.release(entry, item.seq, routed)
		}

		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// release holds one Process call's routed output until every lower-seq call
// against the same entry has already been released, then enqueues them in
// that order (spec.md §8 "Scheduler ordering" / "Byte order preservation").
// A step registered ordered=false still only admits (claim()) one item at a
// time when it has no concurrent capacity, but its workers can run several
// Process calls in parallel; without this gate, whichever worker finishes
// first would hand its output to enqueue() first, stamping it with a lower
// destination-local sequence number regardless of which input it actually
// came from. An ordered entry admits its calls one at a time in seq order,
// but it advances nextSeq and drops the lock before calling release, so a
// later call can still reach this point first; the same gate covers it.
func (s *Scheduler) release(entry *stepEntry, seq uint64, routed []Routed) {
	s.mu.Lock()
	entry.releasePending[seq] = routed
	var toEnqueue []Routed
	for {
		batch, ok := entry.releasePending[entry.nextRelease]
		if !ok {
			break
		}
		delete(entry.releasePending, entry.nextRelease)
		toEnqueue = append(toEnqueue, batch...)
		entry.nextRelease++
	}
	s.mu.Unlock()

	for _, r := range toEnqueue {
		s.enqueue(r.StepID, r.Chunk)
	}
}

// promotePending moves any buffered out-of-order chunks for entry that have
// now become the expected next sequence back onto the ready queue. Holds
// s.mu.
func (s *Scheduler) promotePending(entry *stepEntry) {
	chunk, ok := entry.pending[entry.nextSeq]
	if !ok {
		return
	}
	delete(entry.pending, entry.nextSeq)
	s.ready = append(s.ready, queueItem{stepID: entry.id, seq: entry.nextSeq, chunk: chunk})
}

// claim blocks until a dispatchable item is available, the scheduler has
// stopped, or there is no more possible work (all queues empty and all
// workers idle), in which case it returns ok=false.
func (s *Scheduler) claim() (queueItem, *stepEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.stopped {
			return queueItem{}, nil, false
		}

		for i, item := range s.ready {
			entry := s.steps[item.stepID]
			if entry.ordered && item.seq != entry.nextSeq {
				// Stash out-of-order arrival; remove from ready, keep in
				// the per-step pending buffer for promotion later.
				entry.pending[item.seq] = item.chunk
				s.ready = append(s.ready[:i], s.ready[i+1:]...)
				goto retryScan
			}

			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			s.busyWorkers++
			return item, entry, true
		}

		if s.busyWorkers == 0 && len(s.ready) == 0 {
			s.stopped = true
			s.cond.Broadcast()
			return queueItem{}, nil, false
		}

		s.cond.Wait()
		continue

	retryScan:
		continue
	}
}

// finalizeAll runs Finalize() once on every terminated step, in topological
// order over the registered edges, skipping steps that never terminated
// (only possible if the scheduler stopped due to an error).
func (s *Scheduler) finalizeAll() {
	if s.err != nil {
		return
	}

	order := s.topoOrder()
	for _, id := range order {
		entry := s.steps[id]
		if entry == nil || entry.finalized || !entry.terminated {
			continue
		}
		entry.finalized = true
		if err := entry.step.Finalize(); err != nil && s.err == nil {
			s.err = err
		}
	}
}

// topoOrder computes a topological order of registered steps from the edge
// list using Kahn's algorithm.
func (s *Scheduler) topoOrder() []int {
	indegree := make(map[int]int, len(s.steps))
	for id := range s.steps {
		indegree[id] = 0
	}
	for _, tos := range s.edges {
		for _, to := range tos {
			indegree[to]++
		}
	}

	var queue []int
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}

	var order []int
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, to := range s.edges[id] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	// Any steps not reached by the edge-walk (should not happen in a
	// well-formed graph) are appended at the end so Finalize still runs.
	seen := make(map[int]bool, len(order))
	for _, id := range order {
		seen[id] = true
	}
	for id := range s.steps {
		if !seen[id] {
			order = append(order, id)
		}
	}

	return order
}

