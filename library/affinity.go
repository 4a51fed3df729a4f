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

	"golang.org/x/sys/unix"
)

// coreForScheduler returns the CPU core a scheduler of the given creation
// index is pinned to: round-robin by creation order.
func coreForScheduler(schedulerIndex int) int {
	n := runtime.NumCPU()
	if n <= 0 {
		n = 1
	}
	return schedulerIndex % n
}

// pinToCore pins the calling OS thread to the given CPU core. It does not
// lock the goroutine to that thread itself: it must be called from the
// scheduler goroutine, after runtime.LockOSThread, before it calls
// enter-scheduling: the kernel's notion of "the calling thread" has to
// stay stable for the scheduler's whole lifetime.
func pinToCore(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("pin to core %d: %w", core, err)
	}
	return nil
}
