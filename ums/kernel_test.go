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
	"testing"
	"time"
)

const testPID = 4242

func TestEnterExitLifecycle(t *testing.T) {
	k := NewKernel()
	if err := k.Enter(testPID); err != nil {
		t.Fatalf("Enter() = %v, want nil", err)
	}
	p, ok := k.Process(testPID)
	if !ok {
		t.Fatalf("Process(%d) not found after Enter()", testPID)
	}
	if got, want := p.State(), Running; got != want {
		t.Errorf("process state after Enter() = %s, want %s", got, want)
	}
	if err := k.Exit(testPID); err != nil {
		t.Fatalf("Exit() = %v, want nil", err)
	}
	// Exit only flips the state; the record survives until Teardown.
	if got, want := p.State(), Finished; got != want {
		t.Errorf("process state after Exit() = %s, want %s", got, want)
	}
	if _, ok := k.Process(testPID); !ok {
		t.Errorf("Process(%d) gone after Exit(), want it retained until Teardown", testPID)
	}
}

// TestCommandValidationErrors walks every command's validation-failure
// branch against a kernel prepared by each case's setup. The first list and
// worker created on a fresh kernel always get id 0, so ops can name them
// directly.
func TestCommandValidationErrors(t *testing.T) {
	const schedThread = 1
	tests := []struct {
		description string
		setup       func(t *testing.T, k *Kernel)
		op          func(k *Kernel) error
		want        Code
	}{{
		description: "enter on an already-managed process",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
		},
		op:   func(k *Kernel) error { return k.Enter(testPID) },
		want: ProcessAlreadyExists,
	}, {
		description: "enter after exit",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
			if err := k.Exit(testPID); err != nil {
				t.Fatalf("Exit() = %v", err)
			}
		},
		op:   func(k *Kernel) error { return k.Enter(testPID) },
		want: ProcessAlreadyExists,
	}, {
		description: "exit without enter",
		setup:       func(t *testing.T, k *Kernel) {},
		op:          func(k *Kernel) error { return k.Exit(testPID) },
		want:        CmdNotMainThread,
	}, {
		description: "create-worker on an unknown list",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
		},
		op: func(k *Kernel) error {
			_, err := k.CreateWorker(testPID, CreateWorkerParams{CLID: 99})
			return err
		},
		want: CompletionListNotFound,
	}, {
		description: "create-worker on a running list",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
			clid := mustCreateList(t, k, testPID)
			mustCreateWorker(t, k, testPID, clid, 0x1000, 0x9000)
			mustEnterScheduling(t, k, testPID, schedThread, clid)
		},
		op: func(k *Kernel) error {
			_, err := k.CreateWorker(testPID, CreateWorkerParams{CLID: 0, Entry: 0x1000, StackTop: 0x9000})
			return err
		},
		want: CompletionListLocked,
	}, {
		description: "enter-scheduling on an unknown list",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
		},
		op: func(k *Kernel) error {
			_, err := k.EnterScheduling(testPID, schedThread, 99, 0x2000, CPURegisters{})
			return err
		},
		want: CompletionListNotFound,
	}, {
		description: "enter-scheduling twice on one thread",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
			mustCreateList(t, k, testPID)
			second := mustCreateList(t, k, testPID)
			mustEnterScheduling(t, k, testPID, schedThread, second)
		},
		op: func(k *Kernel) error {
			_, err := k.EnterScheduling(testPID, schedThread, 0, 0x2000, CPURegisters{})
			return err
		},
		want: WrongInput,
	}, {
		description: "exit-scheduling without a scheduler",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
		},
		op: func(k *Kernel) error {
			_, err := k.ExitScheduling(testPID, schedThread)
			return err
		},
		want: SchedulerNotFound,
	}, {
		description: "exit-scheduling while driving a worker",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
			clid := mustCreateList(t, k, testPID)
			wid := mustCreateWorker(t, k, testPID, clid, 0x1000, 0x9000)
			sid := mustEnterScheduling(t, k, testPID, schedThread, clid)
			// Simulate mid-dispatch without the full goroutine rendezvous:
			// exit-scheduling's validation only looks at the worker field.
			s, _ := k.Scheduler(testPID, sid)
			s.worker = SomeWorker(wid)
		},
		op: func(k *Kernel) error {
			_, err := k.ExitScheduling(testPID, schedThread)
			return err
		},
		want: CmdNotScheduler,
	}, {
		description: "execute from a thread with no scheduler",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
			clid := mustCreateList(t, k, testPID)
			mustCreateWorker(t, k, testPID, clid, 0x1000, 0x9000)
		},
		op:   func(k *Kernel) error { return k.Execute(testPID, schedThread, 0) },
		want: SchedulerNotFound,
	}, {
		description: "execute on an unknown worker",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
			clid := mustCreateList(t, k, testPID)
			mustEnterScheduling(t, k, testPID, schedThread, clid)
		},
		op:   func(k *Kernel) error { return k.Execute(testPID, schedThread, 5) },
		want: WorkerNotFound,
	}, {
		description: "dequeue from a thread with no scheduler",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
		},
		op: func(k *Kernel) error {
			_, _, err := k.Dequeue(testPID, schedThread)
			return err
		},
		want: SchedulerNotFound,
	}, {
		description: "pause-yield from a worker with no driving scheduler",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
			clid := mustCreateList(t, k, testPID)
			mustCreateWorker(t, k, testPID, clid, 0x1000, 0x9000)
		},
		op:   func(k *Kernel) error { return k.Yield(testPID, 0, Pause) },
		want: SchedulerNotFound,
	}, {
		description: "yield on an unknown worker",
		setup: func(t *testing.T, k *Kernel) {
			mustEnter(t, k, testPID)
		},
		op:   func(k *Kernel) error { return k.Yield(testPID, 9, Pause) },
		want: WorkerNotFound,
	}}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			k := NewKernel()
			test.setup(t, k)
			if got := wantCode(t, test.op(k)); got != test.want {
				t.Errorf("got code %v, want %v", got, test.want)
			}
		})
	}
}

func wantCode(t *testing.T, err error) Code {
	t.Helper()
	code, ok := CodeOf(err)
	if !ok {
		t.Fatalf("expected a *ums.Error, got %v (%T)", err, err)
	}
	return code
}

func TestCreateListAndWorkerLifecycle(t *testing.T) {
	k := NewKernel()
	mustEnter(t, k, testPID)
	clid := mustCreateList(t, k, testPID)

	wid, err := k.CreateWorker(testPID, CreateWorkerParams{CLID: clid, Entry: 0x1000, Arg: 7, StackTop: 0x9000})
	if err != nil {
		t.Fatalf("CreateWorker() = %v", err)
	}
	w, ok := k.Worker(testPID, wid)
	if !ok {
		t.Fatalf("Worker(%d) not found", wid)
	}
	if w.Entry() != 0x1000 || w.Arg() != 7 {
		t.Errorf("worker entry/arg = %#x/%d, want 0x1000/7", w.Entry(), w.Arg())
	}
	cl, _ := k.List(testPID, clid)
	if got, want := cl.WorkerCount(), 1; got != want {
		t.Errorf("WorkerCount() = %d, want %d", got, want)
	}
}

func TestExecuteYieldPauseRoundTrip(t *testing.T) {
	k := NewKernel()
	mustEnter(t, k, testPID)
	clid := mustCreateList(t, k, testPID)
	wid := mustCreateWorker(t, k, testPID, clid, 0x1000, 0x9000)

	const schedThread = 11
	sid := mustEnterScheduling(t, k, testPID, schedThread, clid)

	w, _ := k.Worker(testPID, wid)
	ranBody := make(chan struct{})
	go func() {
		w.AwaitDispatch()
		close(ranBody)
		if err := k.Yield(testPID, wid, Pause); err != nil {
			t.Errorf("Yield(Pause) = %v", err)
		}
	}()

	if err := k.Execute(testPID, schedThread, wid); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	<-ranBody

	if got := w.State(); got != Idle {
		t.Errorf("worker state after pause = %s, want %s", got, Idle)
	}
	if got := w.SwitchCount(); got != 1 {
		t.Errorf("worker switch count = %d, want 1", got)
	}
	s, _ := k.Scheduler(testPID, sid)
	if got := s.SwitchCount(); got != 1 {
		t.Errorf("scheduler switch count = %d, want 1", got)
	}
	cl, _ := k.List(testPID, clid)
	if !cl.idleContains(wid) {
		t.Errorf("worker %d not back in idle subset after pause", wid)
	}
}

func TestExecuteYieldFinishTerminates(t *testing.T) {
	k := NewKernel()
	mustEnter(t, k, testPID)
	clid := mustCreateList(t, k, testPID)
	wid := mustCreateWorker(t, k, testPID, clid, 0x1000, 0x9000)

	const schedThread = 22
	mustEnterScheduling(t, k, testPID, schedThread, clid)

	w, _ := k.Worker(testPID, wid)
	go func() {
		w.AwaitDispatch()
		if err := k.Yield(testPID, wid, Finish); err != nil {
			t.Errorf("Yield(Finish) = %v", err)
		}
	}()

	if err := k.Execute(testPID, schedThread, wid); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if got := w.State(); got != Finished {
		t.Errorf("worker state = %s, want %s", got, Finished)
	}

	if err := k.Execute(testPID, schedThread, wid); wantCode(t, err) != WorkerAlreadyFinished {
		t.Errorf("Execute(finished worker) code = %v, want WorkerAlreadyFinished", err)
	}

	cl, _ := k.List(testPID, clid)
	if cl.State() != Finished {
		t.Errorf("list state = %s, want %s (sole worker finished)", cl.State(), Finished)
	}
}

func TestExitSchedulingRestoresExitFrame(t *testing.T) {
	k := NewKernel()
	mustEnter(t, k, testPID)
	clid := mustCreateList(t, k, testPID)

	const schedThread = 33
	caller := CPURegisters{RIP: 0x400000, RSP: 0x7ffe0000, RBP: 0x7ffe0000}
	sid, err := k.EnterScheduling(testPID, schedThread, clid, 0x2000, caller)
	if err != nil {
		t.Fatalf("EnterScheduling() = %v", err)
	}

	frame, err := k.ExitScheduling(testPID, schedThread)
	if err != nil {
		t.Fatalf("ExitScheduling() = %v", err)
	}
	if want := (CapturedFrame{IP: 0x400000, SP: 0x7ffe0000, BP: 0x7ffe0000}); frame != want {
		t.Errorf("exit frame = %+v, want %+v", frame, want)
	}
	s, _ := k.Scheduler(testPID, sid)
	if got := s.State(); got != Finished {
		t.Errorf("scheduler state = %s, want %s", got, Finished)
	}
}

func TestDequeueFillsUpToFixedCapacity(t *testing.T) {
	k := NewKernel()
	mustEnter(t, k, testPID)
	clid := mustCreateList(t, k, testPID)
	mustCreateWorker(t, k, testPID, clid, 0x1000, 0x9000)
	mustCreateWorker(t, k, testPID, clid, 0x1100, 0x9100)

	const schedThread = 44
	mustEnterScheduling(t, k, testPID, schedThread, clid)
	// A worker created on a different, still-idle list must not grow this
	// scheduler's already-fixed dequeue buffer.
	otherList := mustCreateList(t, k, testPID)
	mustCreateWorker(t, k, testPID, otherList, 0x1200, 0x9200)

	workers, state, err := k.Dequeue(testPID, schedThread)
	if err != nil {
		t.Fatalf("Dequeue() = %v", err)
	}
	if got, want := len(workers), 2; got != want {
		t.Fatalf("Dequeue() filled %d entries, want %d (buffer fixed at bind time)", got, want)
	}
	if state != Idle {
		t.Errorf("Dequeue() state = %s, want %s", state, Idle)
	}
}

func TestDequeueClampsToCapacityWindow(t *testing.T) {
	k := NewKernel()
	mustEnter(t, k, testPID)
	clid := mustCreateList(t, k, testPID)
	mustCreateWorker(t, k, testPID, clid, 0x1000, 0x9000)
	mustCreateWorker(t, k, testPID, clid, 0x1100, 0x9100)

	const schedThread = 55
	mustEnterScheduling(t, k, testPID, schedThread, clid)

	// Supersede the bind-time window with a narrower one: the scheduler's
	// buffer still holds two slots, but the fill must respect the window
	// in effect at call time.
	cl, _ := k.List(testPID, clid)
	cl.recordCapacityWindow(1, time.Now())

	workers, _, err := k.Dequeue(testPID, schedThread)
	if err != nil {
		t.Fatalf("Dequeue() = %v", err)
	}
	if got, want := len(workers), 1; got != want {
		t.Errorf("Dequeue() filled %d entries, want %d (clamped to the active capacity window)", got, want)
	}
}

func TestTeardownDiscardsProcesses(t *testing.T) {
	k := NewKernel()
	mustEnter(t, k, testPID)
	k.Teardown()
	if _, ok := k.Process(testPID); ok {
		t.Errorf("process %d still present after Teardown()", testPID)
	}
	if err := k.Enter(testPID); err != nil {
		t.Errorf("Enter() after Teardown() = %v, want nil (record should be gone)", err)
	}
}

func mustEnter(t *testing.T, k *Kernel, pid int64) {
	t.Helper()
	if err := k.Enter(pid); err != nil {
		t.Fatalf("Enter(%d) = %v", pid, err)
	}
}

func mustCreateList(t *testing.T, k *Kernel, pid int64) CompletionListID {
	t.Helper()
	clid, err := k.CreateList(pid)
	if err != nil {
		t.Fatalf("CreateList(%d) = %v", pid, err)
	}
	return clid
}

func mustCreateWorker(t *testing.T, k *Kernel, pid int64, clid CompletionListID, entry, stackTop uint64) WorkerID {
	t.Helper()
	wid, err := k.CreateWorker(pid, CreateWorkerParams{CLID: clid, Entry: entry, StackTop: stackTop})
	if err != nil {
		t.Fatalf("CreateWorker(%d) = %v", pid, err)
	}
	return wid
}

func mustEnterScheduling(t *testing.T, k *Kernel, pid, threadID int64, clid CompletionListID) SchedulerID {
	t.Helper()
	sid, err := k.EnterScheduling(pid, threadID, clid, 0x2000, CPURegisters{})
	if err != nil {
		t.Fatalf("EnterScheduling(%d, %d) = %v", pid, threadID, err)
	}
	return sid
}
