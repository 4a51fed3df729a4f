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

import "time"

// Worker is a cooperatively scheduled execution: its stack, entry point,
// and register image are owned by the kernel side, and it runs only
// between a scheduler's Execute call and its own Yield call.
type Worker struct {
	id           WorkerID
	listID       CompletionListID
	entry        uint64
	arg          uint64
	stackTop     uint64
	context      Context
	state        State
	scheduler    OptionalSchedulerID
	switchCount  uint64
	totalExecNs  int64
	lastDispatch time.Time

	// resumeCh/yieldCh implement the context-switch rendezvous. The
	// scheduler's Execute call sends on resumeCh and
	// receives from yieldCh; the worker's body (run by the library package)
	// receives from resumeCh to begin or continue running, and sends on
	// yieldCh from inside Kernel.Yield to hand control back. yieldCh carries
	// the yield kind (Pause or Finish) so Execute's bookkeeping doesn't need
	// a second lookup to learn why the worker gave up the thread.
	resumeCh chan struct{}
	yieldCh  chan WorkerStatus
}

func newWorker(id WorkerID, listID CompletionListID, entry, arg, stackTop uint64, callerCPU CPURegisters) *Worker {
	return &Worker{
		id:       id,
		listID:   listID,
		entry:    entry,
		arg:      arg,
		stackTop: stackTop,
		context:  newWorkerContext(callerCPU, entry, arg, stackTop),
		state:    Idle,
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan WorkerStatus),
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() WorkerID { return w.id }

// ListID returns the owning completion list's identifier.
func (w *Worker) ListID() CompletionListID { return w.listID }

// Entry returns the worker's entry address, as installed by create-worker.
func (w *Worker) Entry() uint64 { return w.entry }

// Arg returns the worker's argument word.
func (w *Worker) Arg() uint64 { return w.arg }

// State returns the worker's current lifecycle state.
func (w *Worker) State() State { return w.state }

// Scheduler returns the scheduler currently driving this worker, if any.
func (w *Worker) Scheduler() OptionalSchedulerID { return w.scheduler }

// SwitchCount returns the number of Execute calls that have targeted this
// worker.
func (w *Worker) SwitchCount() uint64 { return w.switchCount }

// TotalExecNs returns the worker's accumulated execution time in
// nanoseconds.
func (w *Worker) TotalExecNs() int64 { return w.totalExecNs }

// AwaitDispatch blocks the calling goroutine — which must be the worker's
// own execution goroutine, owned by the library package — until a
// scheduler dispatches this worker via Execute. It is used both for the
// worker's very first dispatch and, from inside Kernel.Yield, to suspend a
// paused worker until it is resumed.
func (w *Worker) AwaitDispatch() {
	<-w.resumeCh
}
