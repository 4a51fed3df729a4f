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
	"sync"
	"time"
)

// Kernel is the process-wide object graph: the set of managed processes,
// guarded by a single mutex that serializes every control command. Exactly
// one Kernel should exist per program; library.Broker owns it.
//
// The mutex is held across every command's validation and bookkeeping, but
// it is released before the context-switch rendezvous (see switch.go).
// Holding it across the rendezvous would deadlock: the worker side of that
// rendezvous is a Yield call that itself needs the same lock. Lock release
// happens exactly once per command, including on the switch path.
type Kernel struct {
	mu        sync.Mutex
	processes map[int64]*Process

	// rev counts every mutating call. introspection.Renderer uses it to
	// invalidate cached snapshot text without having to compare record
	// contents field by field.
	rev uint64
}

// Rev returns the kernel's current mutation counter.
func (k *Kernel) Rev() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.rev
}

// NewKernel creates an empty Kernel, ready for Enter calls.
func NewKernel() *Kernel {
	return &Kernel{processes: make(map[int64]*Process)}
}

// Enter registers the calling process. Fails with ProcessAlreadyExists if
// a record already exists for pid, whether Running or Finished.
func (k *Kernel) Enter(pid int64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.processes[pid]; ok {
		return Errorf(ProcessAlreadyExists, "process %d already managed", pid)
	}
	k.processes[pid] = newProcess(pid)
	k.rev++
	return nil
}

// Exit marks the calling process Finished. It never frees process state:
// that happens only in Teardown, so introspection keeps working after the
// workload completes.
func (k *Kernel) Exit(pid int64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.processes[pid]
	if !ok {
		return Errorf(CmdNotMainThread, "no process record for %d", pid)
	}
	p.state = Finished
	k.rev++
	return nil
}

// Process returns the process record for pid, for introspection callers.
func (k *Kernel) Process(pid int64) (*Process, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.processes[pid]
	return p, ok
}

// ProcessIDs returns every managed process's PID.
func (k *Kernel) ProcessIDs() []int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids := make([]int64, 0, len(k.processes))
	for pid := range k.processes {
		ids = append(ids, pid)
	}
	return ids
}

// Teardown discards every managed process and its transitively owned
// completion lists, workers, and schedulers; it is the only deallocator in
// the package. Workers and schedulers parked on channel receives
// are not woken; callers must ensure every scheduler has reached
// exit-scheduling (and so every worker has reached a terminal state)
// before calling Teardown, exactly as library.Broker's Teardown does by
// joining scheduler goroutines first.
func (k *Kernel) Teardown() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.processes = make(map[int64]*Process)
	k.rev++
}

func (k *Kernel) process(pid int64) (*Process, *Error) {
	p, ok := k.processes[pid]
	if !ok {
		return nil, Errorf(ProcessNotFound, "process %d not managed", pid)
	}
	return p, nil
}

// CreateList allocates a completion list in state Idle.
func (k *Kernel) CreateList(pid int64) (CompletionListID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	id := p.nextListID()
	p.lists[id] = newCompletionList(id)
	k.rev++
	return id, nil
}

// CreateWorkerParams bundles create-worker's input parameter block.
type CreateWorkerParams struct {
	CLID     CompletionListID
	Entry    uint64
	Arg      uint64
	StackTop uint64
	// CallerCPU is the calling thread's current register image, whose
	// non-overwritten fields are copied verbatim into the new worker's
	// captured context.
	CallerCPU CPURegisters
}

// CreateWorker allocates a worker on the given completion list. Fails with
// CompletionListNotFound for an unknown list, or CompletionListLocked if
// the list is already Running.
func (k *Kernel) CreateWorker(pid int64, params CreateWorkerParams) (WorkerID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	cl, ok := p.lists[params.CLID]
	if !ok {
		return 0, Errorf(CompletionListNotFound, "list %d not found", params.CLID)
	}
	if cl.state == Running {
		return 0, Errorf(CompletionListLocked, "list %d is running", params.CLID)
	}
	id := p.nextWorkerID()
	w := newWorker(id, params.CLID, params.Entry, params.Arg, params.StackTop, params.CallerCPU)
	p.workers[id] = w
	cl.attachWorker(id)
	k.rev++
	return id, nil
}

// EnterScheduling allocates a scheduler and binds it to a completion list.
// threadID identifies the calling OS thread; at most one scheduler
// record may exist per thread at a time.
func (k *Kernel) EnterScheduling(pid, threadID int64, clid CompletionListID, entry uint64, callerCPU CPURegisters) (SchedulerID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.process(pid)
	if err != nil {
		return 0, err
	}
	if _, busy := p.schedByThread[threadID]; busy {
		return 0, Errorf(WrongInput, "thread %d already incarnates a scheduler", threadID)
	}
	cl, ok := p.lists[clid]
	if !ok {
		return 0, Errorf(CompletionListNotFound, "list %d not found", clid)
	}
	id := p.nextSchedulerID()
	s := newScheduler(id, clid, threadID, callerCPU, entry, cl.workerCount)
	p.schedulers[id] = s
	p.schedByThread[threadID] = id
	cl.bindScheduler(cl.workerCount, time.Now())
	k.rev++
	return id, nil
}

// ExitScheduling marks the calling thread's scheduler Finished. Fails with
// SchedulerNotFound if the thread has no scheduler, or CmdNotScheduler if
// that scheduler is still driving a worker.
func (k *Kernel) ExitScheduling(pid, threadID int64) (CapturedFrame, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.process(pid)
	if err != nil {
		return CapturedFrame{}, err
	}
	sid, ok := p.schedByThread[threadID]
	if !ok {
		return CapturedFrame{}, Errorf(SchedulerNotFound, "no scheduler for thread %d", threadID)
	}
	s := p.schedulers[sid]
	if s.worker.Present() {
		return CapturedFrame{}, Errorf(CmdNotScheduler, "scheduler %d is still driving a worker", sid)
	}
	s.state = Finished
	delete(p.schedByThread, threadID)
	k.rev++
	return s.exitFrame, nil
}

// SchedulerByThread returns the scheduler incarnated by threadID, if any.
func (k *Kernel) SchedulerByThread(pid, threadID int64) (*Scheduler, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.processes[pid]
	if !ok {
		return nil, false
	}
	sid, ok := p.schedByThread[threadID]
	if !ok {
		return nil, false
	}
	return p.schedulers[sid], true
}

// List returns the completion list record for (pid, clid).
func (k *Kernel) List(pid int64, clid CompletionListID) (*CompletionList, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.processes[pid]
	if !ok {
		return nil, false
	}
	cl, ok := p.lists[clid]
	return cl, ok
}

// Worker returns the worker record for (pid, wid).
func (k *Kernel) Worker(pid int64, wid WorkerID) (*Worker, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.processes[pid]
	if !ok {
		return nil, false
	}
	w, ok := p.workers[wid]
	return w, ok
}

// Scheduler returns the scheduler record for (pid, sid).
func (k *Kernel) Scheduler(pid int64, sid SchedulerID) (*Scheduler, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.processes[pid]
	if !ok {
		return nil, false
	}
	s, ok := p.schedulers[sid]
	return s, ok
}

// Dequeue implements command 9: copy the scheduler's private buffer,
// refresh its terminal-state flag, and refill it from the owning
// completion list's idle subset. The fill is clamped to the dequeue
// capacity window in effect at call time, so a buffer fixed at an earlier
// bind never over-advertises against a narrower later window.
func (k *Kernel) Dequeue(pid, threadID int64) ([]OptionalWorkerID, State, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.process(pid)
	if err != nil {
		return nil, 0, err
	}
	sid, ok := p.schedByThread[threadID]
	if !ok {
		return nil, 0, Errorf(SchedulerNotFound, "no scheduler for thread %d", threadID)
	}
	s := p.schedulers[sid]
	cl := p.lists[s.listID]
	buf := s.dequeueBuf
	if limit, ok := cl.ValidatedCapacityAt(time.Now()); ok && limit < len(buf) {
		buf = buf[:limit]
	}
	filled, state := cl.Dequeue(buf)
	s.dequeueSet = state
	k.rev++
	out := make([]OptionalWorkerID, filled)
	copy(out, s.dequeueBuf[:filled])
	return out, state, nil
}
