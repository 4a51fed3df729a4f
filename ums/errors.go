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

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code is a wire-level UMS error code. Positive in memory; negated only at
// the command-dispatch boundary.
type Code int

// The full set of UMS error codes. The numbering is part of the wire
// contract and must not change.
const (
	ProcessNotFound Code = 1000 + iota
	ProcessAlreadyExists
	CompletionListNotFound
	SchedulerNotFound
	WorkerNotFound
	StateRunning
	CmdNotMainThread
	WorkerAlreadyRunning
	WrongInput
	CmdNotScheduler
	CmdNotWorker
	WorkerAlreadyFinished
	NoAvailableWorkers
	CompletionListAlreadyFinished
)

// CompletionListLocked sits past a gap in the numbering; 1014 and 1015 are
// reserved.
const CompletionListLocked Code = 1016

func (c Code) String() string {
	switch c {
	case ProcessNotFound:
		return "PROCESS_NOT_FOUND"
	case ProcessAlreadyExists:
		return "PROCESS_ALREADY_EXISTS"
	case CompletionListNotFound:
		return "COMPLETION_LIST_NOT_FOUND"
	case SchedulerNotFound:
		return "SCHEDULER_NOT_FOUND"
	case WorkerNotFound:
		return "WORKER_NOT_FOUND"
	case StateRunning:
		return "STATE_RUNNING"
	case CmdNotMainThread:
		return "CMD_NOT_MAIN_THREAD"
	case WorkerAlreadyRunning:
		return "WORKER_ALREADY_RUNNING"
	case WrongInput:
		return "WRONG_INPUT"
	case CmdNotScheduler:
		return "CMD_NOT_SCHEDULER"
	case CmdNotWorker:
		return "CMD_NOT_WORKER"
	case WorkerAlreadyFinished:
		return "WORKER_ALREADY_FINISHED"
	case NoAvailableWorkers:
		return "NO_AVAILABLE_WORKERS"
	case CompletionListAlreadyFinished:
		return "COMPLETION_LIST_ALREADY_FINISHED"
	case CompletionListLocked:
		return "COMPLETION_LIST_LOCKED"
	default:
		return fmt.Sprintf("UNKNOWN_CODE(%d)", int(c))
	}
}

// Error pairs a UMS Code with a human-readable message, carried on a grpc
// status error. The grpc code is informational only; callers that care
// about the UMS wire value use Code(), not grpc's code.
type Error struct {
	code Code
	err  error
}

// Errorf builds an *Error carrying the given UMS Code.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		code: code,
		err:  status.Errorf(grpcCodeFor(code), "%s: %s", code, fmt.Sprintf(format, args...)),
	}
}

// Code returns the UMS wire-level error code.
func (e *Error) Code() Code {
	if e == nil {
		return 0
	}
	return e.code
}

// Negated returns the negative wire value a command dispatch returns to
// user space on failure.
func (e *Error) Negated() int {
	if e == nil {
		return 0
	}
	return -int(e.code)
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.err.Error()
}

// Unwrap exposes the underlying grpc-flavored status error for callers that
// want codes.FromError-style introspection.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func grpcCodeFor(code Code) codes.Code {
	switch code {
	case ProcessNotFound, CompletionListNotFound, SchedulerNotFound, WorkerNotFound:
		return codes.NotFound
	case ProcessAlreadyExists:
		return codes.AlreadyExists
	case StateRunning, CompletionListLocked, WorkerAlreadyRunning, WorkerAlreadyFinished,
		CompletionListAlreadyFinished, CmdNotMainThread, CmdNotScheduler, CmdNotWorker:
		return codes.FailedPrecondition
	case WrongInput:
		return codes.InvalidArgument
	case NoAvailableWorkers:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// CodeOf extracts the UMS Code from err, if err is (or wraps) a *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if !asError(err, &e) {
		return 0, false
	}
	return e.code, true
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
