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
// Package ums implements the per-process object graph and scheduling
// protocol of a user-mode cooperative thread scheduling (UMS) subsystem.
//
// The package models kernel-resident state: processes, completion lists,
// workers, and schedulers, plus the context-switch primitive that hands
// control between a scheduler and the worker it dispatches. There is no
// portable way to splice a saved register image into another goroutine's
// execution, so the switch primitive is a goroutine-channel rendezvous:
// the goroutine holding the token is, by construction, the only one
// running application code. Each record still carries the captured CPU and
// FPU register fields for introspection and stats.
package ums

// CPURegisters is a snapshot of one execution's general-purpose register
// file. The field set mirrors a generic x86-64 frame, wide enough to carry
// the instruction pointer, stack/base pointers, and a first-argument
// register independent of what a given worker body actually touches.
type CPURegisters struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI           uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
	RIP                uint64 // instruction pointer / entry address
	RSP                uint64 // stack pointer
	RBP                uint64 // base pointer
	RFLAGS             uint64
}

// FPURegisters is a flattened snapshot of the FPU/XMM register file: 16
// 128-bit registers, captured and restored as an opaque byte blob.
type FPURegisters struct {
	XMM [16][16]byte
}

// CapturedFrame is the {instruction pointer, stack pointer, base pointer}
// triple captured at scheduling-mode entry, used to restore the caller's
// original execution point on exit-scheduling.
type CapturedFrame struct {
	IP, SP, BP uint64
}

// Context is a captured execution: a CPU register file plus an FPU
// register file. One Context belongs to each Worker (its dispatch point)
// and each Scheduler (its "saved scheduler context", restored by
// exit-scheduling).
type Context struct {
	CPU CPURegisters
	FPU FPURegisters
}

// newWorkerContext builds the Context create-worker installs: a copy
// of the caller's register image, with the instruction pointer set to the
// worker's entry address, the first argument register set to its argument
// word, and the stack/base pointers set to the top of its allocated stack.
func newWorkerContext(callerCPU CPURegisters, entry, arg, stackTop uint64) Context {
	cpu := callerCPU
	cpu.RIP = entry
	cpu.RDI = arg // first-argument register, System V AMD64 convention
	cpu.RSP = stackTop
	cpu.RBP = stackTop
	return Context{CPU: cpu}
}
