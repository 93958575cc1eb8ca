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
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	emberdb "github.com/emberdb/emberdb-sdk/go"
	"github.com/stretchr/testify/require"
)

func TestConnectValidation(t *testing.T) {
	ctx := context.Background()
	for name, config := range map[string]*emberdb.Config{
		"no database":    {Endpoint: "https://engine", Username: "u", Password: "p"},
		"no credentials": {Endpoint: "https://engine", Database: "db"},
		"no endpoint":    {Database: "db", Username: "u", Password: "p"},
		"both endpoint and engine name": {
			Endpoint: "https://engine", EngineName: "main",
			Database: "db", Username: "u", Password: "p",
		},
	} {
		_, err := emberdb.Connect(ctx, config)
		var ifaceErr *emberdb.InterfaceError
		require.ErrorAs(t, err, &ifaceErr, name)
	}
}

func TestConnectResolvesEngineName(t *testing.T) {
	ctx := context.Background()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/login":
			fmt.Fprint(w, `{"access_token":"token-1","expiry":3600}`)
		case "/iam/v2/accounts:getIdByName":
			require.Equal(t, "dev", r.URL.Query().Get("account_name"))
			fmt.Fprint(w, `{"account_id":"acc-7"}`)
		case "/core/v1/accounts/acc-7/engines:getIdByName":
			require.Equal(t, "main", r.URL.Query().Get("engine_name"))
			require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"engine_id":{"engine_id":"eng-1"}}`)
		case "/core/v1/accounts/acc-7/engines/eng-1":
			// Resolve back to this very server so queries land below.
			fmt.Fprintf(w, `{"engine":{"endpoint":%q}}`, "http://"+r.Host)
		default:
			fmt.Fprint(w, selectOneResponse)
		}
	}))
	defer func() {
		api.Close()
		http.DefaultClient.CloseIdleConnections()
	}()

	conn, err := emberdb.Connect(ctx, &emberdb.Config{
		EngineName:  "main",
		AccountName: "dev",
		Database:    "db",
		Username:    "u",
		Password:    "p",
		APIEndpoint: api.URL,
	})
	require.NoError(t, err)
	defer conn.Close()

	cursor := conn.Cursor()
	_, err = cursor.Execute(ctx, "SELECT 1")
	require.NoError(t, err)
	row, err := cursor.Fetchone()
	require.NoError(t, err)
	require.Equal(t, emberdb.Row{int64(1)}, row)
}

func TestConnectUnknownEngine(t *testing.T) {
	ctx := context.Background()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/login":
			fmt.Fprint(w, `{"access_token":"token-1","expiry":3600}`)
		case "/iam/v2/account":
			fmt.Fprint(w, `{"account":{"id":"acc-1"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer func() {
		api.Close()
		http.DefaultClient.CloseIdleConnections()
	}()

	_, err := emberdb.Connect(ctx, &emberdb.Config{
		EngineName:  "ghost",
		Database:    "db",
		Username:    "u",
		Password:    "p",
		APIEndpoint: api.URL,
	})
	var resErr *emberdb.EngineResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, "ghost", resErr.EngineName)
	require.Equal(t, http.StatusNotFound, resErr.StatusCode)
	require.Contains(t, resErr.Reason, "does not exist")
}
