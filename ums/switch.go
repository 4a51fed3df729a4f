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

// Execute implements command 7: the calling thread's scheduler dispatches
// wid and blocks until that worker yields. The global lock is held only for
// validation and the idle-to-busy bookkeeping; it is released before the
// goroutine rendezvous that performs the actual control transfer, and
// re-acquired once to record the yield's bookkeeping before Execute
// returns.
func (k *Kernel) Execute(pid, threadID int64, wid WorkerID) error {
	k.mu.Lock()
	p, err := k.process(pid)
	if err != nil {
		k.mu.Unlock()
		return err
	}
	sid, ok := p.schedByThread[threadID]
	if !ok {
		k.mu.Unlock()
		return Errorf(SchedulerNotFound, "no scheduler for thread %d", threadID)
	}
	s := p.schedulers[sid]
	if s.worker.Present() {
		current, _ := s.worker.Get()
		k.mu.Unlock()
		return Errorf(WorkerAlreadyRunning, "scheduler %d is already driving worker %d", sid, current)
	}
	w, ok := p.workers[wid]
	if !ok {
		k.mu.Unlock()
		return Errorf(WorkerNotFound, "worker %d not found", wid)
	}
	if w.listID != s.listID {
		k.mu.Unlock()
		return Errorf(WrongInput, "worker %d is not on scheduler %d's completion list", wid, sid)
	}
	if w.state == Finished {
		k.mu.Unlock()
		return Errorf(WorkerAlreadyFinished, "worker %d has already finished", wid)
	}
	cl := p.lists[s.listID]
	if !cl.idleContains(wid) {
		k.mu.Unlock()
		return Errorf(WorkerAlreadyRunning, "worker %d is not idle", wid)
	}

	now := time.Now()
	cl.moveIdleToBusy(wid)
	w.state = Running
	w.scheduler = SomeScheduler(sid)
	w.lastDispatch = now
	s.state = Running
	s.worker = SomeWorker(wid)
	s.lastDispatch = now
	k.rev++
	k.mu.Unlock()

	w.resumeCh <- struct{}{}
	status := <-w.yieldCh

	k.mu.Lock()
	defer k.mu.Unlock()
	elapsed := time.Since(now)
	w.switchCount++
	w.totalExecNs += elapsed.Nanoseconds()
	s.recordSwitch(elapsed)
	s.worker = NoWorker
	s.state = Idle
	w.scheduler = NoScheduler

	switch status {
	case Finish:
		w.state = Finished
		cl.finishWorker()
	default:
		w.state = Idle
		cl.moveBusyToIdle(wid)
	}
	k.rev++
	return nil
}

// Yield implements command 8: the calling worker goroutine gives the
// driving thread back to its scheduler, carrying status so Execute's
// bookkeeping knows whether the worker is pausable or done for good. If
// status is Pause, Yield blocks until the worker is dispatched again.
func (k *Kernel) Yield(pid int64, wid WorkerID, status WorkerStatus) error {
	k.mu.Lock()
	p, err := k.process(pid)
	if err != nil {
		k.mu.Unlock()
		return err
	}
	w, ok := p.workers[wid]
	if !ok {
		k.mu.Unlock()
		return Errorf(WorkerNotFound, "worker %d not found", wid)
	}
	if !w.scheduler.Present() {
		k.mu.Unlock()
		return Errorf(SchedulerNotFound, "worker %d has no driving scheduler", wid)
	}
	if w.state != Running {
		k.mu.Unlock()
		return Errorf(CmdNotWorker, "worker %d is not currently dispatched", wid)
	}
	k.mu.Unlock()

	w.yieldCh <- status
	if status == Pause {
		w.AwaitDispatch()
	}
	return nil
}
