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

// WorkerID identifies a worker within its owning process. Dense,
// monotonically increasing from 0, never reused.
type WorkerID int64

// SchedulerID identifies a scheduler within its owning process.
type SchedulerID int64

// CompletionListID identifies a completion list within its owning process.
type CompletionListID int64

// OptionalWorkerID is an in-memory "absent or present" worker reference.
// Serializes to -1 at the wire boundary; the sentinel never appears in
// in-memory fields.
type OptionalWorkerID struct {
	id      WorkerID
	present bool
}

// SomeWorker wraps a present WorkerID.
func SomeWorker(id WorkerID) OptionalWorkerID { return OptionalWorkerID{id: id, present: true} }

// NoWorker is the absent worker reference.
var NoWorker = OptionalWorkerID{}

// Get returns the wrapped ID and whether it is present.
func (o OptionalWorkerID) Get() (WorkerID, bool) { return o.id, o.present }

// Present reports whether the reference is non-absent.
func (o OptionalWorkerID) Present() bool { return o.present }

// Wire returns the serialized form: the ID itself, or -1 if absent.
func (o OptionalWorkerID) Wire() int64 {
	if !o.present {
		return -1
	}
	return int64(o.id)
}

// Equal reports whether o and other carry the same presence and, if
// present, the same ID. Implementing Equal lets cmp.Diff compare values of
// this type without tripping over its unexported fields.
func (o OptionalWorkerID) Equal(other OptionalWorkerID) bool {
	return o.present == other.present && (!o.present || o.id == other.id)
}

// OptionalSchedulerID is an in-memory "absent or present" scheduler
// reference, mirroring OptionalWorkerID.
type OptionalSchedulerID struct {
	id      SchedulerID
	present bool
}

// SomeScheduler wraps a present SchedulerID.
func SomeScheduler(id SchedulerID) OptionalSchedulerID {
	return OptionalSchedulerID{id: id, present: true}
}

// NoScheduler is the absent scheduler reference.
var NoScheduler = OptionalSchedulerID{}

// Get returns the wrapped ID and whether it is present.
func (o OptionalSchedulerID) Get() (SchedulerID, bool) { return o.id, o.present }

// Present reports whether the reference is non-absent.
func (o OptionalSchedulerID) Present() bool { return o.present }

// Wire returns the serialized form: the ID itself, or -1 if absent.
func (o OptionalSchedulerID) Wire() int64 {
	if !o.present {
		return -1
	}
	return int64(o.id)
}

// Equal reports whether o and other carry the same presence and, if
// present, the same ID, mirroring OptionalWorkerID.Equal.
func (o OptionalSchedulerID) Equal(other OptionalSchedulerID) bool {
	return o.present == other.present && (!o.present || o.id == other.id)
}

// idAllocator hands out dense, monotonically increasing identifiers scoped
// to one process. An index is never reused once handed out.
type idAllocator struct {
	next int64
}

func (a *idAllocator) alloc() int64 {
	id := a.next
	a.next++
	return id
}
