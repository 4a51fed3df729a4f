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
// Package library is the user-side broker: it owns the device handle,
// worker stacks, scheduler-thread affinity, and the per-scheduler dequeue
// buffer mirror, translating all of that into calls against device.Control.
package library

import "github.com/google/goums/ums"

// DequeueBuffer is the user side's parallel view of a scheduler's dequeue
// buffer: a snapshot of worker identifiers refreshed from the
// kernel only when the local count reaches zero, so picking a worker to
// dispatch never costs a kernel round trip by itself.
type DequeueBuffer struct {
	slots []ums.OptionalWorkerID
	count int
	state ums.State
}

// NewDequeueBuffer returns an empty buffer sized to capacity. It starts out
// exhausted (count 0): NextWorker fails with NoAvailableWorkers until the
// first Refill.
func NewDequeueBuffer(capacity int) *DequeueBuffer {
	return &DequeueBuffer{slots: make([]ums.OptionalWorkerID, capacity)}
}

// Slots exposes the buffer's current contents.
func (b *DequeueBuffer) Slots() []ums.OptionalWorkerID { return b.slots }

// Refill replaces the buffer's contents with a fresh kernel snapshot
// (device.Control.Dequeue's returned Workers slice, already truncated to
// the entries actually filled) and recomputes the local count of
// dispatchable slots.
func (b *DequeueBuffer) Refill(workers []ums.OptionalWorkerID, state ums.State) {
	b.slots = append(b.slots[:0], workers...)
	b.state = state
	b.count = 0
	for _, w := range b.slots {
		if w.Present() {
			b.count++
		}
	}
}

// Empty reports whether the local view has been exhausted and needs a
// Refill before NextWorker can succeed again.
func (b *DequeueBuffer) Empty() bool { return b.count == 0 }

// State returns the terminal-state flag from the most recent Refill.
func (b *DequeueBuffer) State() ums.State { return b.state }

// NextWorker returns the first slot
// whose value is not absent, retire that slot locally, and decrement the
// local count. Fails with CompletionListAlreadyFinished if the buffer's
// state is Finished, or NoAvailableWorkers if nothing is left to dispatch.
func (b *DequeueBuffer) NextWorker() (ums.WorkerID, error) {
	if b.state == ums.Finished {
		return 0, ums.Errorf(ums.CompletionListAlreadyFinished, "dequeue buffer reports the completion list has finished")
	}
	if b.count == 0 {
		return 0, ums.Errorf(ums.NoAvailableWorkers, "dequeue buffer is exhausted")
	}
	for i, w := range b.slots {
		if id, present := w.Get(); present {
			b.slots[i] = ums.NoWorker
			b.count--
			return id, nil
		}
	}
	// count and the actual slot contents disagreed; treat as exhausted
	// rather than panic on a logic bug elsewhere in this file.
	b.count = 0
	return 0, ums.Errorf(ums.NoAvailableWorkers, "dequeue buffer is exhausted")
}
