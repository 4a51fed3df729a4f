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

// Process is keyed by the OS process identifier of the thread that first
// entered UMS management. It owns three child arenas: completion
// lists, workers, and schedulers, each keyed by dense per-process
// identifiers.
type Process struct {
	pid   int64
	state State // Running or Finished; never Idle

	lists         map[CompletionListID]*CompletionList
	workers       map[WorkerID]*Worker
	schedulers    map[SchedulerID]*Scheduler
	schedByThread map[int64]SchedulerID

	listIDs  CompletionListID
	workIDs  WorkerID
	schedIDs SchedulerID
}

func newProcess(pid int64) *Process {
	return &Process{
		pid:           pid,
		state:         Running,
		lists:         make(map[CompletionListID]*CompletionList),
		workers:       make(map[WorkerID]*Worker),
		schedulers:    make(map[SchedulerID]*Scheduler),
		schedByThread: make(map[int64]SchedulerID),
	}
}

// PID returns the process's OS process identifier.
func (p *Process) PID() int64 { return p.pid }

// State returns the process's lifecycle state: Running or Finished.
func (p *Process) State() State { return p.state }

// ListIDs returns every completion-list identifier owned by this process,
// in allocation order.
func (p *Process) ListIDs() []CompletionListID {
	ids := make([]CompletionListID, 0, len(p.lists))
	for i := CompletionListID(0); i < p.listIDs; i++ {
		if _, ok := p.lists[i]; ok {
			ids = append(ids, i)
		}
	}
	return ids
}

// SchedulerIDs returns every scheduler identifier owned by this process, in
// allocation order.
func (p *Process) SchedulerIDs() []SchedulerID {
	ids := make([]SchedulerID, 0, len(p.schedulers))
	for i := SchedulerID(0); i < p.schedIDs; i++ {
		if _, ok := p.schedulers[i]; ok {
			ids = append(ids, i)
		}
	}
	return ids
}

// WorkerIDsOf returns the identifiers of every worker on the given
// scheduler's completion list, in allocation order, or nil if sid names no
// scheduler of this process.
func (p *Process) WorkerIDsOf(sid SchedulerID) []WorkerID {
	s, ok := p.schedulers[sid]
	if !ok {
		return nil
	}
	var ids []WorkerID
	for i := WorkerID(0); i < p.workIDs; i++ {
		w, ok := p.workers[i]
		if ok && w.listID == s.listID {
			ids = append(ids, i)
		}
	}
	return ids
}

func (p *Process) nextListID() CompletionListID {
	id := p.listIDs
	p.listIDs++
	return id
}

func (p *Process) nextWorkerID() WorkerID {
	id := p.workIDs
	p.workIDs++
	return id
}

func (p *Process) nextSchedulerID() SchedulerID {
	id := p.schedIDs
	p.schedIDs++
	return id
}
