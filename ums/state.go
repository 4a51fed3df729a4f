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

// State is the lifecycle state shared by completion lists, workers, and
// schedulers.
type State int8

const (
	// Idle: a worker waiting to be scheduled, a scheduler waiting/searching
	// for work, or a completion list with available workers.
	Idle State = iota
	// Running: a worker currently dispatched, a scheduler currently driving
	// a worker, or a completion list currently bound to a scheduler.
	Running
	// Finished: a worker that has completed, a scheduler that has exited
	// scheduling mode, or a completion list whose workers have all finished.
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// WorkerStatus is the yield-kind a worker passes to Kernel.Yield.
type WorkerStatus int8

const (
	// Pause suspends the worker; it remains eligible for future dispatch.
	Pause WorkerStatus = iota
	// Finish terminates the worker for good.
	Finish
)

func (s WorkerStatus) String() string {
	if s == Finish {
		return "FINISH"
	}
	return "PAUSE"
}
