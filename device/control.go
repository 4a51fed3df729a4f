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
// Package device exposes the nine numbered UMS control commands as typed
// Go methods over a single *ums.Kernel, and a read-only HTTP introspection
// surface alongside them.
//
// There's no real syscall boundary here — no pointer/arg-block marshaling
// is needed — but the copy-in/copy-out discipline of a real control
// device is preserved at the Go call boundary: Control copies
// fields out of caller-owned parameter structs before mutating kernel
// state, and copies results back only into the fields each command is
// specified to modify.
package device

import (
	"time"

	log "github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/google/goums/ums"
)

// Command identifies one of the nine control-device operations. The
// numbering is part of the wire contract and must not change.
type Command int

const (
	CmdEnter              Command = 1
	CmdExit               Command = 2
	CmdCreateList         Command = 3
	CmdCreateWorker       Command = 4
	CmdEnterScheduling    Command = 5
	CmdExitScheduling     Command = 6
	CmdExecute            Command = 7
	CmdYield              Command = 8
	CmdDequeueCompletions Command = 9
)

// Control is the single serialized entry point translating command codes
// into operations on a *ums.Kernel. Every exported method corresponds to
// one row of the command table; none of them hold any state of their own
// beyond the Kernel and the caller identity passed in.
type Control struct {
	Kernel *ums.Kernel

	// bootID is a process-lifetime correlation token, generated once per
	// Control. It has no protocol meaning, it just lets log lines from the
	// same control device be grepped together across a run.
	bootID uuid.UUID
}

// New wraps k in a Control.
func New(k *ums.Kernel) *Control {
	return &Control{Kernel: k, bootID: uuid.New()}
}

// CreateWorkerParams mirrors the create-worker argument block:
// {entry, args, stack-size, stack-top, clid}.
type CreateWorkerParams struct {
	CLID      ums.CompletionListID
	Entry     uint64
	Arg       uint64
	StackSize uint64
	StackTop  uint64
	CallerCPU ums.CPURegisters
}

// EnterSchedulingParams mirrors the enter-scheduling argument block:
// {entry, clid, sid(out), core-id}. SID is filled in by
// Control.EnterScheduling on success. CoreID is the core the broker pinned
// the calling thread to; Control only logs it, and the kernel does not
// record it.
type EnterSchedulingParams struct {
	CLID      ums.CompletionListID
	Entry     uint64
	CoreID    int
	CallerCPU ums.CPURegisters

	SID ums.SchedulerID // out
}

// DequeueParams mirrors the dequeue argument block:
// {size, count(out), state(out), workers[size]}. Control.Dequeue fills
// Workers up to the scheduler's advertised capacity and sets Count and
// State; nothing else in the block is touched.
type DequeueParams struct {
	Workers []ums.OptionalWorkerID

	Count int       // out
	State ums.State // out
}

// Enter issues command 1.
func (c *Control) Enter(pid int64) error {
	return c.Kernel.Enter(pid)
}

// Exit issues command 2.
func (c *Control) Exit(pid int64) error {
	return c.Kernel.Exit(pid)
}

// CreateList issues command 3.
func (c *Control) CreateList(pid int64) (ums.CompletionListID, error) {
	return c.Kernel.CreateList(pid)
}

// CreateWorker issues command 4.
func (c *Control) CreateWorker(pid int64, p *CreateWorkerParams) (ums.WorkerID, error) {
	return c.Kernel.CreateWorker(pid, ums.CreateWorkerParams{
		CLID:      p.CLID,
		Entry:     p.Entry,
		Arg:       p.Arg,
		StackTop:  p.StackTop,
		CallerCPU: p.CallerCPU,
	})
}

// EnterScheduling issues command 5. On success p.SID is filled with the
// new scheduler identifier, mirroring an in/out argument block.
func (c *Control) EnterScheduling(pid, threadID int64, p *EnterSchedulingParams) error {
	sid, err := c.Kernel.EnterScheduling(pid, threadID, p.CLID, p.Entry, p.CallerCPU)
	if err != nil {
		return err
	}
	p.SID = sid
	log.V(1).Infof("ums[%s]: process %d thread %d entered scheduling as scheduler %d (core %d)", c.bootID, pid, threadID, sid, p.CoreID)
	return nil
}

// ExitScheduling issues command 6, returning the exit frame captured at
// enter-scheduling. There's no literal register image to splice back in the
// Go port; library.Broker discards the returned frame.
func (c *Control) ExitScheduling(pid, threadID int64) (ums.CapturedFrame, error) {
	return c.Kernel.ExitScheduling(pid, threadID)
}

// Execute issues command 7: dispatch wid on the calling thread's scheduler,
// blocking until it yields.
func (c *Control) Execute(pid, threadID int64, wid ums.WorkerID) error {
	return c.Kernel.Execute(pid, threadID, wid)
}

// Yield issues command 8 on behalf of a running worker.
func (c *Control) Yield(pid int64, wid ums.WorkerID, kind ums.WorkerStatus) error {
	return c.Kernel.Yield(pid, wid, kind)
}

// Dequeue issues command 9 and returns the filled argument block: Workers
// holds the snapshot of the idle subset, truncated to the entries actually
// filled, Count the fill count, and State the terminal-state flag.
func (c *Control) Dequeue(pid, threadID int64) (*DequeueParams, error) {
	start := time.Now()
	workers, state, err := c.Kernel.Dequeue(pid, threadID)
	if err != nil {
		return nil, err
	}
	log.V(2).Infof("ums[%s]: dequeue pid=%d thread=%d took %s, filled=%d state=%s", c.bootID, pid, threadID, time.Since(start), len(workers), state)
	return &DequeueParams{Workers: workers, Count: len(workers), State: state}, nil
}
