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

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
)

// Renderer produces the read-only, one-field-per-line text snapshots that
// back the introspection namespace: process summaries, scheduler info,
// worker info, completion-list info. Rendered text is cached by the
// kernel's mutation counter (Kernel.Rev) so repeated polls of an unchanged
// entity don't re-walk the object graph every time.
type Renderer struct {
	k     *Kernel
	mu    sync.Mutex
	cache *simplelru.LRU
}

type renderEntry struct {
	rev  uint64
	text string
}

// NewRenderer builds a Renderer backed by an LRU of the given capacity. A
// capacity of a few dozen comfortably covers one entry per live
// scheduler/worker/list/process without growing unbounded on long-running
// introspection traffic.
func NewRenderer(k *Kernel, capacity int) (*Renderer, error) {
	cache, err := simplelru.NewLRU(capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("introspection cache: %w", err)
	}
	return &Renderer{k: k, cache: cache}, nil
}

func (r *Renderer) rendered(key string, build func() (string, bool)) (string, bool) {
	rev := r.k.Rev()

	r.mu.Lock()
	if v, ok := r.cache.Get(key); ok {
		if e := v.(renderEntry); e.rev == rev {
			r.mu.Unlock()
			return e.text, true
		}
	}
	r.mu.Unlock()

	text, ok := build()
	if !ok {
		return "", false
	}

	r.mu.Lock()
	r.cache.Add(key, renderEntry{rev: rev, text: text})
	r.mu.Unlock()
	return text, true
}

func renderLines(fields ...[2]string) string {
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, "%s: %s\n", f[0], f[1])
	}
	return b.String()
}

// ProcessInfo renders the per-process summary counters supplementing the
// leaf renderers below.
func (r *Renderer) ProcessInfo(pid int64) (string, bool) {
	key := fmt.Sprintf("process/%d", pid)
	return r.rendered(key, func() (string, bool) {
		p, ok := r.k.Process(pid)
		if !ok {
			return "", false
		}
		r.k.mu.Lock()
		defer r.k.mu.Unlock()
		var switchTotal uint64
		for _, s := range p.schedulers {
			switchTotal += s.switchCount
		}
		return renderLines(
			[2]string{"pid", fmt.Sprintf("%d", p.pid)},
			[2]string{"state", p.state.String()},
			[2]string{"lists", fmt.Sprintf("%d", len(p.lists))},
			[2]string{"workers", fmt.Sprintf("%d", len(p.workers))},
			[2]string{"schedulers", fmt.Sprintf("%d", len(p.schedulers))},
			[2]string{"total_switch_count", fmt.Sprintf("%d", switchTotal)},
		), true
	})
}

// SchedulerInfo renders a scheduler's identifier, entry address,
// completion-list id, switch count, last and average switch durations, and
// state, in that order.
func (r *Renderer) SchedulerInfo(pid int64, sid SchedulerID) (string, bool) {
	key := fmt.Sprintf("scheduler/%d/%d", pid, sid)
	return r.rendered(key, func() (string, bool) {
		s, ok := r.k.Scheduler(pid, sid)
		if !ok {
			return "", false
		}
		r.k.mu.Lock()
		defer r.k.mu.Unlock()
		return renderLines(
			[2]string{"id", fmt.Sprintf("%d", s.id)},
			[2]string{"entry", fmt.Sprintf("0x%x", s.savedCtx.CPU.RIP)},
			[2]string{"completion_list", fmt.Sprintf("%d", s.listID)},
			[2]string{"switch_count", fmt.Sprintf("%d", s.switchCount)},
			[2]string{"last_switch_ns", fmt.Sprintf("%d", s.lastSwitchNs.Nanoseconds())},
			[2]string{"avg_switch_ns", fmt.Sprintf("%.1f", s.avgSwitchNs)},
			[2]string{"state", s.state.String()},
		), true
	})
}

// WorkerInfo renders a worker's identifier, owning scheduler, entry
// address, completion list, switch count, total execution time, and state.
func (r *Renderer) WorkerInfo(pid int64, wid WorkerID) (string, bool) {
	key := fmt.Sprintf("worker/%d/%d", pid, wid)
	return r.rendered(key, func() (string, bool) {
		w, ok := r.k.Worker(pid, wid)
		if !ok {
			return "", false
		}
		r.k.mu.Lock()
		defer r.k.mu.Unlock()
		sched := "none"
		if sid, present := w.scheduler.Get(); present {
			sched = fmt.Sprintf("%d", sid)
		}
		return renderLines(
			[2]string{"id", fmt.Sprintf("%d", w.id)},
			[2]string{"scheduler", sched},
			[2]string{"entry", fmt.Sprintf("0x%x", w.entry)},
			[2]string{"completion_list", fmt.Sprintf("%d", w.listID)},
			[2]string{"switch_count", fmt.Sprintf("%d", w.switchCount)},
			[2]string{"total_exec_ns", fmt.Sprintf("%d", w.totalExecNs)},
			[2]string{"state", w.state.String()},
		), true
	})
}

// ListInfo renders a completion list's identifier, state, worker and
// finished counts, and idle-subset size.
func (r *Renderer) ListInfo(pid int64, clid CompletionListID) (string, bool) {
	key := fmt.Sprintf("list/%d/%d", pid, clid)
	return r.rendered(key, func() (string, bool) {
		cl, ok := r.k.List(pid, clid)
		if !ok {
			return "", false
		}
		r.k.mu.Lock()
		defer r.k.mu.Unlock()
		return renderLines(
			[2]string{"id", fmt.Sprintf("%d", cl.id)},
			[2]string{"state", cl.state.String()},
			[2]string{"worker_count", fmt.Sprintf("%d", cl.workerCount)},
			[2]string{"finished_count", fmt.Sprintf("%d", cl.finishedCount)},
			[2]string{"idle_count", fmt.Sprintf("%d", len(cl.idle))},
			[2]string{"busy_count", fmt.Sprintf("%d", len(cl.busy))},
		), true
	})
}

// SchedulerIDsSorted returns a process's scheduler identifiers in ascending
// order, for stable HTTP route enumeration.
func (k *Kernel) SchedulerIDsSorted(pid int64) []SchedulerID {
	p, ok := k.Process(pid)
	if !ok {
		return nil
	}
	ids := p.SchedulerIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
