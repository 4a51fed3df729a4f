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
// Package testutil contains small shared test helpers: one file of
// cmp-based diffing helpers, imported by the ums and library tests.
package testutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Diff compares got and want with cmp.Diff and fails the test with both the
// diff and a caller-supplied label if they differ.
func Diff(t *testing.T, label string, got, want interface{}) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("%s mismatch (-want +got):\n%s", label, diff)
	}
}
