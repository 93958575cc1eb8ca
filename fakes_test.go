/*
 * Copyright 2025 EmberDB, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package emberdb_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	emberdb "github.com/emberdb/emberdb-sdk/go"
)

const selectOneResponse = `{"columns":[{"name":"1","type":"Int32"}],"data":[[1]],"rows":1}`

// fakeService is an in-process stand-in for the identity endpoint and the
// query engine, with knobs to inject failures.
type fakeService struct {
	server *httptest.Server

	logins  atomic.Int32
	queries atomic.Int32

	// reject401 serves that many 401 responses before honoring queries.
	reject401 atomic.Int32
	// loginStatus, when non-zero, fails logins with that HTTP status.
	loginStatus atomic.Int32
	// tokenExpiry is the expiry in seconds reported by the login endpoint.
	tokenExpiry atomic.Int64

	mu         sync.Mutex
	statements []string
	response   string
	// queryHook, when set, handles query requests entirely.
	queryHook http.HandlerFunc
}

func newFakeService(t *testing.T) *fakeService {
	f := &fakeService{response: selectOneResponse}
	f.tokenExpiry.Store(3600)
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(func() {
		f.server.Close()
		http.DefaultClient.CloseIdleConnections()
	})
	return f
}

func (f *fakeService) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/auth/v1/login" {
		f.handleLogin(w, r)
		return
	}
	f.handleQuery(w, r)
}

func (f *fakeService) handleLogin(w http.ResponseWriter, _ *http.Request) {
	if status := f.loginStatus.Load(); status != 0 {
		w.WriteHeader(int(status))
		fmt.Fprint(w, `{"message":"invalid credentials"}`)
		return
	}
	n := f.logins.Add(1)
	fmt.Fprintf(w, `{"access_token":"token-%d","expiry":%d}`, n, f.tokenExpiry.Load())
}

func (f *fakeService) handleQuery(w http.ResponseWriter, r *http.Request) {
	f.queries.Add(1)

	if f.reject401.Load() > 0 {
		f.reject401.Add(-1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	hook := f.queryHook
	f.mu.Unlock()
	if hook != nil {
		hook(w, r)
		return
	}

	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.statements = append(f.statements, string(body))
	response := f.response
	f.mu.Unlock()
	fmt.Fprint(w, response)
}

func (f *fakeService) setResponse(response string) {
	f.mu.Lock()
	f.response = response
	f.mu.Unlock()
}

func (f *fakeService) setQueryHook(hook http.HandlerFunc) {
	f.mu.Lock()
	f.queryHook = hook
	f.mu.Unlock()
}

func (f *fakeService) receivedStatements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statements...)
}

func (f *fakeService) config() *emberdb.Config {
	return &emberdb.Config{
		Endpoint:    f.server.URL,
		Database:    "test",
		Username:    "tester@example.com",
		Password:    "secret",
		APIEndpoint: f.server.URL,
	}
}
