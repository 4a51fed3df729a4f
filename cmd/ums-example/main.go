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
// Binary ums-example drives two completion lists, each with one worker and
// one scheduler whose loop does nothing but immediately exit scheduling
// mode. It's a smoke test of enter, create-list, create-worker,
// enter-scheduling, exit-scheduling and exit; no worker is ever dispatched,
// so execute, yield and dequeue are not issued.
package main

import (
	"flag"

	log "github.com/golang/glog"

	"github.com/google/goums/library"
	"github.com/google/goums/ums"
)

func main() {
	flag.Parse()

	b := library.New()

	list1, err := b.CreateCompletionList()
	if err != nil {
		log.Exitf("create completion list 1: %v", err)
	}
	log.Infof("completion list %d was created", list1)

	list2, err := b.CreateCompletionList()
	if err != nil {
		log.Exitf("create completion list 2: %v", err)
	}
	log.Infof("completion list %d was created", list2)

	worker1, err := b.CreateWorker(list1, function1, 1, 0)
	if err != nil {
		log.Exitf("create worker 1: %v", err)
	}
	worker2, err := b.CreateWorker(list2, function2, 2, 0)
	if err != nil {
		log.Exitf("create worker 2: %v", err)
	}
	log.Infof("workers %d and %d were created", worker1, worker2)

	if err := b.CreateScheduler(list1, loop); err != nil {
		log.Exitf("create scheduler 1: %v", err)
	}
	if err := b.CreateScheduler(list2, loop); err != nil {
		log.Exitf("create scheduler 2: %v", err)
	}

	if err := b.Teardown(); err != nil {
		log.Exitf("teardown: %v", err)
	}
}

func loop(s *library.Scheduler) {
	log.Infof("scheduler %d: loop", s.ID())
}

func function1(b *library.Broker, wid ums.WorkerID, arg uint64) {
	log.Infof("worker %d: function1(arg=%d)", wid, arg)
}

func function2(b *library.Broker, wid ums.WorkerID, arg uint64) {
	log.Infof("worker %d: function2(arg=%d)", wid, arg)
}
