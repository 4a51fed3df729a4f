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
// Binary ums-example2 drives several completion lists through schedulers
// that actually dequeue and execute workers, exercising the
// dequeue/next-worker loop rather than just smoke-testing enter/exit. It
// can optionally serve the read-only introspection hierarchy over HTTP
// while the workload runs.
package main

import (
	"flag"
	"net/http"
	"time"

	log "github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/google/goums/device"
	"github.com/google/goums/library"
	"github.com/google/goums/ums"
)

var (
	listen         = flag.String("listen", "", "Address to serve the introspection hierarchy on. Empty disables it.")
	root           = flag.String("root", "/ums", "Path the introspection hierarchy is rooted at.")
	schedulers     = flag.Int("schedulers", 2, "Number of completion lists, each driven by one scheduler.")
	workersPerList = flag.Int("workers_per_list", 5, "Workers created on each completion list.")
	linger         = flag.Duration("linger", 0, "How long to keep introspection readable after the workload completes, before teardown.")
)

func main() {
	flag.Parse()

	b := library.New()

	if *listen != "" {
		srv, err := device.NewIntrospectionServer(b.Kernel(), *root, 64)
		if err != nil {
			log.Exitf("introspection server: %v", err)
		}
		r := mux.NewRouter()
		srv.Register(r)
		go func() {
			if err := http.ListenAndServe(*listen, r); err != nil {
				log.Errorf("introspection server: %v", err)
			}
		}()
		log.Infof("serving introspection at http://%s%s", *listen, *root)
	}

	done := make(chan struct{}, *schedulers)
	for i := 0; i < *schedulers; i++ {
		clid, err := b.CreateCompletionList()
		if err != nil {
			log.Exitf("create completion list %d: %v", i, err)
		}
		if _, err := b.CreateWorker(clid, function1, uint64(i), 0); err != nil {
			log.Exitf("create worker on list %d: %v", clid, err)
		}
		for j := 1; j < *workersPerList; j++ {
			if _, err := b.CreateWorker(clid, function2, uint64(j), 0); err != nil {
				log.Exitf("create worker on list %d: %v", clid, err)
			}
		}
		if err := b.CreateScheduler(clid, func(s *library.Scheduler) {
			drainLoop(s)
			done <- struct{}{}
		}); err != nil {
			log.Exitf("create scheduler for list %d: %v", clid, err)
		}
	}

	for i := 0; i < *schedulers; i++ {
		<-done
	}
	if *linger > 0 {
		log.Infof("workload complete; introspection stays readable for %s", *linger)
		time.Sleep(*linger)
	}

	if err := b.Teardown(); err != nil {
		log.Exitf("teardown: %v", err)
	}
}

// drainLoop dequeues and executes workers until its completion list reports
// Finished with nothing left to dispatch.
func drainLoop(s *library.Scheduler) {
	for {
		wid, err := s.NextWorker()
		if err != nil {
			if code, ok := ums.CodeOf(err); ok && code == ums.CompletionListAlreadyFinished {
				return
			}
			log.Errorf("scheduler %d: NextWorker: %v", s.ID(), err)
			return
		}
		log.Infof("scheduler %d: dispatching worker %d", s.ID(), wid)
		if err := s.Execute(wid); err != nil {
			log.Errorf("scheduler %d: Execute(%d): %v", s.ID(), wid, err)
			return
		}
		if s.Done() {
			return
		}
	}
}

func function1(b *library.Broker, wid ums.WorkerID, arg uint64) {
	log.Infof("worker %d: function1(arg=%d)", wid, arg)
	if err := b.Pause(wid); err != nil {
		log.Errorf("worker %d: Pause: %v", wid, err)
		return
	}
	log.Infof("worker %d: function1 resumed (arg=%d)", wid, arg)
}

func function2(b *library.Broker, wid ums.WorkerID, arg uint64) {
	log.Infof("worker %d: function2(arg=%d)", wid, arg)
}
