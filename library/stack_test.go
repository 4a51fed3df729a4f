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

import "testing"

func TestNewWorkerStackAlignmentAndTrampoline(t *testing.T) {
	const trampoline = uint64(0xdeadbeefcafef00d)
	s, err := NewWorkerStack(8192, trampoline)
	if err != nil {
		t.Fatalf("NewWorkerStack() = %v", err)
	}
	defer func() {
		if err := s.Free(); err != nil {
			t.Errorf("Free() = %v", err)
		}
	}()

	if s.Top%stackAlign != 0 {
		t.Errorf("Top = %#x, want 16-byte aligned", s.Top)
	}

	base := sliceAddr(s.usable)
	top := base + uint64(len(s.usable))
	if s.Top >= top || s.Top < base {
		t.Fatalf("Top = %#x not within usable region [%#x, %#x)", s.Top, base, top)
	}

	var word uint64
	off := s.Top + machineWordSz - base
	for i := 0; i < machineWordSz; i++ {
		word |= uint64(s.usable[off+uint64(i)]) << (8 * i)
	}
	if word != trampoline {
		t.Errorf("word above Top = %#x, want trampoline %#x", word, trampoline)
	}
}

func TestNewWorkerStackPromotesUndersizedRequest(t *testing.T) {
	s, err := NewWorkerStack(1, 0)
	if err != nil {
		t.Fatalf("NewWorkerStack() = %v", err)
	}
	defer s.Free()

	if len(s.usable) < minStackSize {
		t.Errorf("usable region = %d bytes, want at least %d", len(s.usable), minStackSize)
	}
}

func TestAlignHelpers(t *testing.T) {
	if got := alignUp(10, 16); got != 16 {
		t.Errorf("alignUp(10, 16) = %d, want 16", got)
	}
	if got := alignUp(16, 16); got != 16 {
		t.Errorf("alignUp(16, 16) = %d, want 16", got)
	}
	if got := alignDown(31, 16); got != 16 {
		t.Errorf("alignDown(31, 16) = %d, want 16", got)
	}
}
