//
// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
//
package ums

import (
	"math"
	"time"

	"github.com/Workiva/go-datastructures/augmentedtree"
)

// CompletionList is a container of workers owned by one process and driven
// by one scheduler at a time. The idle and busy subsets are maintained
// FIFO by insertion order; dequeue enumerates idle workers in that order.
type CompletionList struct {
	id            CompletionListID
	state         State
	workerCount   int
	finishedCount int
	idle          []WorkerID // eligible for dispatch, FIFO
	busy          []WorkerID // executing or already completed

	// capacityWindows records, for every scheduler ever bound to this list,
	// the dequeue-buffer capacity that was fixed at bind time and the
	// half-open wall-clock interval over which that capacity applied, open
	// on the right until a later bind supersedes it. Queried through
	// ValidatedCapacityAt on every dequeue to clamp the fill to the
	// capacity in effect at call time, without rescanning bind history
	// linearly.
	capacityWindows augmentedtree.Tree
	nextWindowID    uint64
}

func newCompletionList(id CompletionListID) *CompletionList {
	return &CompletionList{
		id:              id,
		state:           Idle,
		capacityWindows: augmentedtree.New(1),
	}
}

// ID returns the completion list's identifier.
func (cl *CompletionList) ID() CompletionListID { return cl.id }

// State returns the completion list's aggregate state.
func (cl *CompletionList) State() State { return cl.state }

// WorkerCount returns the total number of workers ever attached.
func (cl *CompletionList) WorkerCount() int { return cl.workerCount }

// FinishedCount returns the number of attached workers that have reached
// Finished.
func (cl *CompletionList) FinishedCount() int { return cl.finishedCount }

// IdleLen returns the size of the idle subset.
func (cl *CompletionList) IdleLen() int { return len(cl.idle) }

// attachWorker adds a newly created worker to the idle subset. Callers must
// have already validated that the list is not Running.
func (cl *CompletionList) attachWorker(id WorkerID) {
	cl.idle = append(cl.idle, id)
	cl.workerCount++
}

// bindScheduler transitions the list to Running on first scheduler binding
// and records the dequeue buffer capacity fixed for that scheduler.
func (cl *CompletionList) bindScheduler(bufSize int, now time.Time) {
	if cl.state == Idle {
		cl.state = Running
	}
	cl.recordCapacityWindow(bufSize, now)
}

func (cl *CompletionList) recordCapacityWindow(size int, now time.Time) {
	// Close out any still-open window.
	q := cl.capacityWindows.Query(&capacityWindow{start: math.MinInt64, end: math.MaxInt64})
	for _, iv := range q {
		w := iv.(*capacityWindow)
		if w.end == math.MaxInt64 {
			w.end = now.UnixNano()
		}
	}
	cl.nextWindowID++
	cl.capacityWindows.Add(&capacityWindow{
		id:    cl.nextWindowID,
		size:  size,
		start: now.UnixNano(),
		end:   math.MaxInt64,
	})
}

// ValidatedCapacityAt returns the dequeue buffer capacity that was in
// effect at time t, if any scheduler had bound this list by then.
func (cl *CompletionList) ValidatedCapacityAt(t time.Time) (int, bool) {
	ts := t.UnixNano()
	for _, iv := range cl.capacityWindows.Query(&capacityWindow{start: ts, end: ts}) {
		w := iv.(*capacityWindow)
		if w.start <= ts && ts < w.end {
			return w.size, true
		}
	}
	return 0, false
}

// moveIdleToBusy moves a worker from the idle subset to the busy subset,
// preserving FIFO order of the remaining idle entries.
func (cl *CompletionList) moveIdleToBusy(id WorkerID) {
	for i, w := range cl.idle {
		if w == id {
			cl.idle = append(cl.idle[:i], cl.idle[i+1:]...)
			break
		}
	}
	cl.busy = append(cl.busy, id)
}

// moveBusyToIdle moves a paused worker back from busy to idle, appended at
// the tail of idle so FIFO dispatch order is preserved.
func (cl *CompletionList) moveBusyToIdle(id WorkerID) {
	for i, w := range cl.busy {
		if w == id {
			cl.busy = append(cl.busy[:i], cl.busy[i+1:]...)
			break
		}
	}
	cl.idle = append(cl.idle, id)
}

func (cl *CompletionList) idleContains(id WorkerID) bool {
	for _, w := range cl.idle {
		if w == id {
			return true
		}
	}
	return false
}

func (cl *CompletionList) busyContains(id WorkerID) bool {
	for _, w := range cl.busy {
		if w == id {
			return true
		}
	}
	return false
}

// finishWorker increments the finished count and transitions the list to
// Finished once every attached worker has finished.
func (cl *CompletionList) finishWorker() {
	cl.finishedCount++
	if cl.finishedCount == cl.workerCount {
		cl.state = Finished
	}
}

// Dequeue snapshots the idle subset, in FIFO order, into buf (up to
// len(buf) entries), reports the terminal state, and returns the count
// filled.
func (cl *CompletionList) Dequeue(buf []OptionalWorkerID) (filled int, state State) {
	state = Idle
	if cl.finishedCount == cl.workerCount && cl.workerCount > 0 {
		state = Finished
	}
	for i := range buf {
		buf[i] = NoWorker
	}
	n := len(cl.idle)
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		buf[i] = SomeWorker(cl.idle[i])
	}
	return n, state
}

// capacityWindow implements augmentedtree.Interval over a single dimension
// of wall-clock nanoseconds.
type capacityWindow struct {
	id         uint64
	size       int
	start, end int64
}

func (w *capacityWindow) LowAtDimension(d uint64) int64  { return w.start }
func (w *capacityWindow) HighAtDimension(d uint64) int64 { return w.end }
func (w *capacityWindow) OverlapsAtDimension(j augmentedtree.Interval, d uint64) bool {
	return w.HighAtDimension(d) >= j.LowAtDimension(d) && j.HighAtDimension(d) >= w.LowAtDimension(d)
}
func (w *capacityWindow) ID() uint64 { return w.id }
