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

package emberdb

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

var (
	// ErrCursorClosed is returned for any operation on a closed cursor.
	ErrCursorClosed = errors.New("emberdb: cursor is closed")
	// ErrConnectionClosed is returned for any operation on a closed connection.
	ErrConnectionClosed = errors.New("emberdb: connection is closed")
)

// AuthenticationError indicates that the identity endpoint rejected the
// configured credentials, or that the engine rejected a freshly obtained
// token. It is never retried by the SDK.
type AuthenticationError struct {
	// Endpoint is the identity endpoint the authentication was attempted against.
	Endpoint string
	// Cause describes why the authentication failed.
	Cause string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("emberdb: failed to authenticate at %s: %s", e.Endpoint, e.Cause)
}

// QueryError indicates that a statement could not be executed: the server
// rejected it, answered with a malformed body, or the transport failed.
type QueryError struct {
	// QueryID is the client-generated ID of the failed query.
	QueryID string
	// StatusCode is the HTTP status code of the response, or zero if the
	// request never completed.
	StatusCode int
	// Message is the server-reported error message, verbatim, if any.
	Message string
	// Err is the underlying transport or decode error, if any.
	Err error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("emberdb: query %s failed: %v", e.QueryID, e.Err)
	}
	return fmt.Sprintf("emberdb: query %s failed: %d: %s", e.QueryID, e.StatusCode, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// DataError indicates that a response value does not decode under its
// declared column type.
type DataError struct {
	// Row and Column locate the offending cell. Row is -1 when the error is
	// not attributable to a single cell.
	Row    int
	Column string
	// Cause describes the decode failure.
	Cause string
}

func (e *DataError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("emberdb: data error: %s", e.Cause)
	}
	return fmt.Sprintf("emberdb: data error at row %d, column %q: %s", e.Row, e.Column, e.Cause)
}

// EngineResolutionError indicates that the engine name could not be resolved
// to a query endpoint through the management API.
type EngineResolutionError struct {
	// EngineName is the name that was being resolved.
	EngineName string
	// StatusCode is the management API's HTTP status, or zero if the request
	// never completed.
	StatusCode int
	// Reason describes the failure.
	Reason string
}

func (e *EngineResolutionError) Error() string {
	return fmt.Sprintf("emberdb: unable to resolve engine %q: %s", e.EngineName, e.Reason)
}

// InterfaceError indicates a misuse of the SDK surface: an operation that is
// not valid in the cursor's current state, such as fetching before any query
// has been executed, or a configuration that cannot be connected with.
type InterfaceError struct {
	// Op is the operation that was attempted.
	Op string
	// Reason describes why the operation is invalid.
	Reason string
}

func (e *InterfaceError) Error() string {
	return fmt.Sprintf("emberdb: %s: %s", e.Op, e.Reason)
}

// serverMessage extracts the error message from a response body. Error bodies
// are JSON objects with a "message" field, but proxies may answer plain text.
func serverMessage(data []byte) string {
	if msg := gjson.GetBytes(data, "message"); msg.Exists() {
		return msg.String()
	}
	return string(data)
}

func checkStatusCodeOK(resp *http.Response, queryID string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	data, _ := io.ReadAll(resp.Body)
	return &QueryError{
		QueryID:    queryID,
		StatusCode: resp.StatusCode,
		Message:    serverMessage(data),
	}
}

// sneakyBodyClose closes the body and ignores the error.
// This is useful to close the HTTP response body when we don't care about the error.
func sneakyBodyClose(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
