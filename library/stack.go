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
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	minStackSize  = 4096
	stackAlign    = 16
	machineWordSz = 8
	guardPageSize = 4096
)

// WorkerStack is a guard-paged worker stack: a PROT_NONE page, the usable
// region, and another PROT_NONE page, all from one mmap call so the
// region is returned to the OS in one Free call. A worker whose body
// overruns the usable region faults immediately on the guard page instead
// of corrupting an adjacent allocation.
type WorkerStack struct {
	region []byte // the full mmap'd region, guard pages included
	usable []byte // the middle, read-write slice

	// Top is the initial stack-top address create-worker should receive:
	// 16-byte aligned, one machine word below the top word of the usable
	// region, which holds the trampoline address. Nothing unwinds through
	// that word here: Broker.runWorker issues the implicit finish-yield
	// when the WorkerFunc returns.
	Top uint64
}

// NewWorkerStack allocates a stack of at least size bytes (silently
// promoted to minStackSize) and writes trampolineAddr at the top word.
func NewWorkerStack(size int, trampolineAddr uint64) (*WorkerStack, error) {
	if size < minStackSize {
		size = minStackSize
	}
	size = alignUp(size, stackAlign)

	total := guardPageSize + size + guardPageSize
	region, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap worker stack: %w", err)
	}
	if err := unix.Mprotect(region[:guardPageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(region)
		return nil, fmt.Errorf("guard page (low): %w", err)
	}
	if err := unix.Mprotect(region[guardPageSize+size:], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(region)
		return nil, fmt.Errorf("guard page (high): %w", err)
	}

	usable := region[guardPageSize : guardPageSize+size]
	base := sliceAddr(usable)
	top := alignDown(base+uint64(len(usable)), stackAlign)

	ws := &WorkerStack{region: region, usable: usable}
	top -= machineWordSz
	ws.writeWord(top, trampolineAddr)
	ws.Top = top - machineWordSz

	return ws, nil
}

// Free releases the stack's backing pages.
func (s *WorkerStack) Free() error {
	return unix.Munmap(s.region)
}

func (s *WorkerStack) writeWord(addr, value uint64) {
	base := sliceAddr(s.usable)
	off := addr - base
	for i := 0; i < machineWordSz; i++ {
		s.usable[off+uint64(i)] = byte(value >> (8 * i))
	}
}

func alignUp(n, align int) int                { return (n + align - 1) &^ (align - 1) }
func alignDown(n uint64, align uint64) uint64 { return n &^ (align - 1) }

func sliceAddr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}
