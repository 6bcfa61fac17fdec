package simulation

import "container/heap"

type eventKind int

// Event kinds double as tie-break ranks for events at the same instant:
// completions free units before arrivals claim them, and the hourly snapshot
// sees the state after everything else at that instant.
const (
	evCompletion eventKind = iota
	evArrival
	evHourTick
)

type event struct {
	at      float64
	kind    eventKind
	seq     uint64
	cases   int // evArrival
	station int // evCompletion
	c       *simCase
}

// eventQueue is a min-heap on (at, kind, seq).
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.at != b.at {
		return a.at < b.at
	}
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	return a.seq < b.seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}

// scheduler wraps eventQueue with a monotonically increasing sequence.
type scheduler struct {
	q   eventQueue
	seq uint64
}

func (s *scheduler) push(ev *event) {
	s.seq++
	ev.seq = s.seq
	heap.Push(&s.q, ev)
}

func (s *scheduler) pop() *event {
	return heap.Pop(&s.q).(*event)
}

func (s *scheduler) empty() bool { return len(s.q) == 0 }

// waitQueue orders waiting cases by priority (higher first), then by their
// arrival in the system, then by case sequence. With no priorities a case that
// entered the process earlier is served first at every station.
type waitQueue []*simCase

func (w waitQueue) Len() int { return len(w) }

func (w waitQueue) Less(i, j int) bool {
	a, b := w[i], w[j]
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	if a.arrival != b.arrival {
		return a.arrival < b.arrival
	}
	return a.seq < b.seq
}

func (w waitQueue) Swap(i, j int) { w[i], w[j] = w[j], w[i] }

func (w *waitQueue) Push(x any) { *w = append(*w, x.(*simCase)) }

func (w *waitQueue) Pop() any {
	old := *w
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*w = old[:n-1]
	return c
}
