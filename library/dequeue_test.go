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
	"testing"

	"github.com/google/goums/internal/testutil"
	"github.com/google/goums/ums"
)

func TestDequeueBufferRefillSnapshotsSlots(t *testing.T) {
	b := NewDequeueBuffer(4)
	b.Refill([]ums.OptionalWorkerID{ums.SomeWorker(3), ums.SomeWorker(7)}, ums.Idle)

	testutil.Diff(t, "Slots()", b.Slots(), []ums.OptionalWorkerID{ums.SomeWorker(3), ums.SomeWorker(7)})
}

func TestDequeueBufferNextWorker(t *testing.T) {
	b := NewDequeueBuffer(4)
	b.Refill([]ums.OptionalWorkerID{ums.SomeWorker(3), ums.SomeWorker(7)}, ums.Idle)

	got, err := b.NextWorker()
	if err != nil {
		t.Fatalf("NextWorker() = %v", err)
	}
	if got != 3 {
		t.Errorf("NextWorker() = %d, want 3", got)
	}

	got, err = b.NextWorker()
	if err != nil {
		t.Fatalf("NextWorker() = %v", err)
	}
	if got != 7 {
		t.Errorf("NextWorker() = %d, want 7", got)
	}

	if !b.Empty() {
		t.Errorf("Empty() = false after draining every slot")
	}
	if _, err := b.NextWorker(); err == nil {
		t.Fatalf("NextWorker() on empty buffer = nil error, want NoAvailableWorkers")
	} else if code, _ := ums.CodeOf(err); code != ums.NoAvailableWorkers {
		t.Errorf("NextWorker() code = %v, want %v", code, ums.NoAvailableWorkers)
	}
}

func TestDequeueBufferFinishedState(t *testing.T) {
	b := NewDequeueBuffer(2)
	b.Refill(nil, ums.Finished)

	if _, err := b.NextWorker(); err == nil {
		t.Fatalf("NextWorker() on finished buffer = nil error, want CompletionListAlreadyFinished")
	} else if code, _ := ums.CodeOf(err); code != ums.CompletionListAlreadyFinished {
		t.Errorf("NextWorker() code = %v, want %v", code, ums.CompletionListAlreadyFinished)
	}
}
