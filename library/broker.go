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
package library

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/google/goums/device"
	"github.com/google/goums/ums"
)

const (
	defaultStackSize = 64 * 1024

	// trampolineAddr is the synthetic return address written at the top of
	// every worker stack. There's no literal unwind through it here, since
	// WorkerFunc returning is what drives the implicit finish-yield, but
	// the stack layout still carries the word.
	trampolineAddr = ^uint64(0)

	// syntheticAddrBase/syntheticAddrStride give every worker and
	// scheduler a distinct, readable "entry address" for introspection,
	// standing in for the real code address a hardware register image
	// would have recorded.
	syntheticAddrBase   = 0x400000
	syntheticAddrStride = 0x10

	maxExitRetries = 5
	exitRetryDelay = time.Millisecond
)

// WorkerFunc is user worker code: it receives the Broker and its own
// identifier so it can call Pause to cooperatively yield mid-body, and the
// argument word installed at create-worker time. A plain return behaves as
// an implicit finish-yield.
type WorkerFunc func(b *Broker, wid ums.WorkerID, arg uint64)

// SchedulerFunc is user scheduler code: it owns the *Scheduler handle for
// the whole lifetime between enter-scheduling and exit-scheduling.
type SchedulerFunc func(s *Scheduler)

// Broker is the user-side object the rest of a program talks to: it owns
// the lazily opened device handle (here, a *ums.Kernel and a
// *device.Control over it), every worker's guard-paged stack, and the
// goroutines incarnating each scheduler.
type Broker struct {
	mu       sync.Mutex
	kernel   *ums.Kernel
	control  *device.Control
	pid      int64
	opened   bool
	nextAddr uint64
	schedIdx int32
	stacks   map[ums.WorkerID]*WorkerStack

	group errgroup.Group
}

// New returns a Broker with its own private Kernel, not yet entered.
func New() *Broker {
	return &Broker{
		kernel:   ums.NewKernel(),
		control:  nil,
		pid:      int64(unix.Getpid()),
		nextAddr: syntheticAddrBase,
		stacks:   make(map[ums.WorkerID]*WorkerStack),
	}
}

func (b *Broker) open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return nil
	}
	if b.control == nil {
		b.control = device.New(b.kernel)
	}
	if err := b.control.Enter(b.pid); err != nil {
		return fmt.Errorf("enter: %w", err)
	}
	b.opened = true
	return nil
}

func (b *Broker) allocAddr() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	addr := b.nextAddr
	b.nextAddr += syntheticAddrStride
	return addr
}

// Kernel exposes the underlying *ums.Kernel, for callers that want to wire
// up an introspection server (device.NewIntrospectionServer) alongside the
// broker.
func (b *Broker) Kernel() *ums.Kernel { return b.kernel }

// CreateCompletionList issues create-list.
func (b *Broker) CreateCompletionList() (ums.CompletionListID, error) {
	if err := b.open(); err != nil {
		return 0, err
	}
	return b.control.CreateList(b.pid)
}

// CreateWorker allocates a guard-paged stack, issues create-worker against
// it, and spawns the goroutine that will run fn once a scheduler dispatches
// it for the first time. stackSize is silently promoted to defaultStackSize
// when zero.
func (b *Broker) CreateWorker(clid ums.CompletionListID, fn WorkerFunc, arg uint64, stackSize int) (ums.WorkerID, error) {
	if err := b.open(); err != nil {
		return 0, err
	}
	if stackSize <= 0 {
		stackSize = defaultStackSize
	}
	stack, err := NewWorkerStack(stackSize, trampolineAddr)
	if err != nil {
		return 0, fmt.Errorf("allocate worker stack: %w", err)
	}

	wid, err := b.control.CreateWorker(b.pid, &device.CreateWorkerParams{
		CLID:      clid,
		Entry:     b.allocAddr(),
		Arg:       arg,
		StackSize: uint64(stackSize),
		StackTop:  stack.Top,
	})
	if err != nil {
		_ = stack.Free()
		return 0, err
	}

	b.mu.Lock()
	b.stacks[wid] = stack
	b.mu.Unlock()

	go b.runWorker(wid, fn, arg)
	return wid, nil
}

// runWorker is the worker's own goroutine: it parks until a scheduler
// dispatches it, runs fn (which may itself call Pause any number of times),
// and issues the implicit finish-yield once fn returns.
func (b *Broker) runWorker(wid ums.WorkerID, fn WorkerFunc, arg uint64) {
	w, ok := b.kernel.Worker(b.pid, wid)
	if !ok {
		log.Errorf("ums: worker %d vanished before its first dispatch", wid)
		return
	}
	w.AwaitDispatch()
	fn(b, wid, arg)
	if err := b.control.Yield(b.pid, wid, ums.Finish); err != nil {
		log.Errorf("ums: worker %d implicit finish-yield: %v", wid, err)
	}
}

// Pause issues yield(PAUSE) on behalf of a running worker: it blocks
// the calling goroutine until a scheduler dispatches that worker again.
// Must be called from inside the worker's own WorkerFunc.
func (b *Broker) Pause(wid ums.WorkerID) error {
	return b.control.Yield(b.pid, wid, ums.Pause)
}

// WorkerExit issues yield(FINISH) on behalf of a running worker, for a
// worker that wants to end early instead of returning from its WorkerFunc.
func (b *Broker) WorkerExit(wid ums.WorkerID) error {
	return b.control.Yield(b.pid, wid, ums.Finish)
}

// CreateScheduler spawns the goroutine that incarnates a new scheduler
// thread: it locks an OS thread, pins it to a round-robin core,
// issues enter-scheduling, runs fn, and issues exit-scheduling once fn
// returns. The goroutine is tracked by an errgroup.Group so Teardown can
// wait for every scheduler to finish before tearing down the kernel.
func (b *Broker) CreateScheduler(clid ums.CompletionListID, fn SchedulerFunc) error {
	if err := b.open(); err != nil {
		return err
	}
	idx := int(atomic.AddInt32(&b.schedIdx, 1) - 1)
	entry := b.allocAddr()

	b.group.Go(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		core := coreForScheduler(idx)
		if err := pinToCore(core); err != nil {
			log.Warningf("ums: pin scheduler %d to core %d: %v", idx, core, err)
		}
		threadID := int64(unix.Gettid())

		p := &device.EnterSchedulingParams{CLID: clid, Entry: entry, CoreID: core}
		if err := b.control.EnterScheduling(b.pid, threadID, p); err != nil {
			return fmt.Errorf("enter-scheduling: %w", err)
		}

		s := &Scheduler{broker: b, id: p.SID, threadID: threadID, clid: clid}
		fn(s)

		if _, err := b.control.ExitScheduling(b.pid, threadID); err != nil {
			return fmt.Errorf("exit-scheduling: %w", err)
		}
		return nil
	})
	return nil
}

// Teardown waits for every scheduler goroutine to reach exit-scheduling,
// frees every worker stack, issues exit, and discards the kernel's entire
// object graph. A failed exit is retried up to maxExitRetries times,
// exitRetryDelay apart, before Teardown gives up and returns the error.
func (b *Broker) Teardown() error {
	if err := b.group.Wait(); err != nil {
		return fmt.Errorf("scheduler goroutine failed: %w", err)
	}

	b.mu.Lock()
	stacks := b.stacks
	b.stacks = make(map[ums.WorkerID]*WorkerStack)
	opened := b.opened
	b.opened = false
	b.mu.Unlock()

	for wid, stack := range stacks {
		if err := stack.Free(); err != nil {
			log.Warningf("ums: free stack for worker %d: %v", wid, err)
		}
	}

	if opened {
		var err error
		for attempt := 0; attempt < maxExitRetries; attempt++ {
			if err = b.control.Exit(b.pid); err == nil {
				break
			}
			time.Sleep(exitRetryDelay)
		}
		if err != nil {
			return fmt.Errorf("exit after %d attempts: %w", maxExitRetries, err)
		}
	}

	b.kernel.Teardown()
	return nil
}

// Scheduler is the user-side handle a SchedulerFunc drives: it wraps the
// scheduler's Execute/Dequeue/NextWorker calls against the broker's device
// handle and owns that scheduler's private dequeue buffer mirror.
type Scheduler struct {
	broker   *Broker
	id       ums.SchedulerID
	threadID int64
	clid     ums.CompletionListID
	buf      *DequeueBuffer
}

// ID returns the scheduler's identifier.
func (s *Scheduler) ID() ums.SchedulerID { return s.id }

// ListID returns the completion list this scheduler was bound to.
func (s *Scheduler) ListID() ums.CompletionListID { return s.clid }

// Execute issues command 7, dispatching wid and blocking until it yields.
func (s *Scheduler) Execute(wid ums.WorkerID) error {
	return s.broker.control.Execute(s.broker.pid, s.threadID, wid)
}

// Refill issues command 9 and replaces the local dequeue buffer mirror with
// the kernel's response.
func (s *Scheduler) Refill() error {
	p, err := s.broker.control.Dequeue(s.broker.pid, s.threadID)
	if err != nil {
		return err
	}
	if s.buf == nil {
		s.buf = NewDequeueBuffer(len(p.Workers))
	}
	s.buf.Refill(p.Workers, p.State)
	return nil
}

// NextWorker implements the next-worker selection policy: it refills the local
// buffer from the kernel whenever the local view is exhausted, then returns
// the next dispatchable worker.
func (s *Scheduler) NextWorker() (ums.WorkerID, error) {
	if s.buf == nil || s.buf.Empty() {
		if err := s.Refill(); err != nil {
			return 0, err
		}
	}
	return s.buf.NextWorker()
}

// Done reports whether the most recent Refill saw the completion list in
// its Finished state with nothing left to dispatch.
func (s *Scheduler) Done() bool {
	return s.buf != nil && s.buf.State() == ums.Finished && s.buf.Empty()
}
