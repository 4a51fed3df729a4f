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

// Scheduler is a one-to-one pairing of an OS thread with a scheduler
// record: the user-written function that selects and dispatches workers
// from one completion list.
type Scheduler struct {
	id          SchedulerID
	listID      CompletionListID
	osThread    int64
	worker      OptionalWorkerID
	savedCtx    Context
	exitFrame   CapturedFrame
	state       State
	switchCount uint64

	lastSwitchNs time.Duration
	totalSwitch  time.Duration
	avgSwitchNs  float64

	lastDispatch time.Time

	// dequeueBuf is the scheduler's private dequeue buffer, sized to the
	// owning completion list's worker count at creation time. The capacity
	// is fixed then and never resized, even if workers are later created
	// on other lists.
	dequeueBuf []OptionalWorkerID
	dequeueSet State
}

func newScheduler(id SchedulerID, listID CompletionListID, osThread int64, callerCPU CPURegisters, entry uint64, bufSize int) *Scheduler {
	frame := CapturedFrame{IP: callerCPU.RIP, SP: callerCPU.RSP, BP: callerCPU.RBP}
	cpu := callerCPU
	cpu.RIP = entry
	return &Scheduler{
		id:         id,
		listID:     listID,
		osThread:   osThread,
		savedCtx:   Context{CPU: cpu},
		exitFrame:  frame,
		state:      Idle,
		dequeueBuf: make([]OptionalWorkerID, bufSize),
	}
}

// ID returns the scheduler's identifier.
func (s *Scheduler) ID() SchedulerID { return s.id }

// ListID returns the owning completion list's identifier.
func (s *Scheduler) ListID() CompletionListID { return s.listID }

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State { return s.state }

// Worker returns the worker this scheduler is currently driving, if any.
func (s *Scheduler) Worker() OptionalWorkerID { return s.worker }

// SwitchCount returns the number of Execute calls this scheduler has
// successfully completed.
func (s *Scheduler) SwitchCount() uint64 { return s.switchCount }

// LastSwitch returns the duration of the most recent execute/yield cycle.
func (s *Scheduler) LastSwitch() time.Duration { return s.lastSwitchNs }

// AvgSwitch returns the running average switch duration.
func (s *Scheduler) AvgSwitch() time.Duration { return time.Duration(s.avgSwitchNs) }

// TotalSwitch returns the cumulative switch duration.
func (s *Scheduler) TotalSwitch() time.Duration { return s.totalSwitch }

func (s *Scheduler) recordSwitch(d time.Duration) {
	s.switchCount++
	s.lastSwitchNs = d
	s.totalSwitch += d
	n := float64(s.switchCount)
	s.avgSwitchNs += (float64(d) - s.avgSwitchNs) / n
}
