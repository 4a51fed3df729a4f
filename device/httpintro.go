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
package device

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/google/goums/ums"
)

// IntrospectionServer renders the read-only introspection hierarchy over HTTP:
// /<root>/<pid>/info, /<root>/<pid>/lists/<clid>/info,
// /<root>/<pid>/schedulers/<sid>/info, and
// /<root>/<pid>/schedulers/<sid>/workers/<wid>. Each route is a single-read
// plain-text snapshot; there are no writes anywhere in this surface.
type IntrospectionServer struct {
	kernel   *ums.Kernel
	renderer *ums.Renderer
	root     string
}

// NewIntrospectionServer builds an IntrospectionServer rooted at root (for
// example "/ums"), backed by a fresh renderer cache of the given capacity.
func NewIntrospectionServer(k *ums.Kernel, root string, cacheCapacity int) (*IntrospectionServer, error) {
	r, err := ums.NewRenderer(k, cacheCapacity)
	if err != nil {
		return nil, err
	}
	return &IntrospectionServer{kernel: k, renderer: r, root: root}, nil
}

// Register installs every introspection route onto router.
func (s *IntrospectionServer) Register(router *mux.Router) {
	router.HandleFunc(s.root+"/{pid}/info", s.handleProcessInfo)
	router.HandleFunc(s.root+"/{pid}/lists/{clid}/info", s.handleListInfo)
	router.HandleFunc(s.root+"/{pid}/schedulers/{sid}/info", s.handleSchedulerInfo)
	router.HandleFunc(s.root+"/{pid}/schedulers/{sid}/workers/{wid}", s.handleWorkerInfo)
}

func pathInt64(req *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(req)[name], 10, 64)
}

func (s *IntrospectionServer) handleProcessInfo(w http.ResponseWriter, req *http.Request) {
	pid, err := pathInt64(req, "pid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text, ok := s.renderer.ProcessInfo(pid)
	if !ok {
		http.Error(w, fmt.Sprintf("no such process %d", pid), http.StatusNotFound)
		return
	}
	sendTextResponse(w, text)
}

func (s *IntrospectionServer) handleListInfo(w http.ResponseWriter, req *http.Request) {
	pid, err := pathInt64(req, "pid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	clid, err := pathInt64(req, "clid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text, ok := s.renderer.ListInfo(pid, ums.CompletionListID(clid))
	if !ok {
		http.Error(w, fmt.Sprintf("no such completion list %d on process %d", clid, pid), http.StatusNotFound)
		return
	}
	sendTextResponse(w, text)
}

func (s *IntrospectionServer) handleSchedulerInfo(w http.ResponseWriter, req *http.Request) {
	pid, err := pathInt64(req, "pid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sid, err := pathInt64(req, "sid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text, ok := s.renderer.SchedulerInfo(pid, ums.SchedulerID(sid))
	if !ok {
		http.Error(w, fmt.Sprintf("no such scheduler %d on process %d", sid, pid), http.StatusNotFound)
		return
	}
	sendTextResponse(w, text)
}

func (s *IntrospectionServer) handleWorkerInfo(w http.ResponseWriter, req *http.Request) {
	pid, err := pathInt64(req, "pid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wid, err := pathInt64(req, "wid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	text, ok := s.renderer.WorkerInfo(pid, ums.WorkerID(wid))
	if !ok {
		http.Error(w, fmt.Sprintf("no such worker %d on process %d", wid, pid), http.StatusNotFound)
		return
	}
	sendTextResponse(w, text)
}

func sendTextResponse(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte(text)); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
