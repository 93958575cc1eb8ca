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
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const defaultArraysize = 1

type cursorState int

const (
	// cursorIdle: no statement executed yet, or the previous result is done.
	cursorIdle cursorState = iota
	// cursorExecuting: a request is in flight.
	cursorExecuting
	// cursorHasResults: a response has been parsed and rows are fetchable.
	cursorHasResults
	// cursorClosed: terminal.
	cursorClosed
)

// Cursor executes statements against the engine and exposes fetch operations
// over the produced result set.
//
// A cursor is driven by one logical caller at a time. The connection's token
// manager it relies on is shared safely across cursors.
type Cursor struct {
	conn *Connection

	// Arraysize is the default number of rows returned by Fetchmany.
	Arraysize int

	mu      sync.Mutex
	state   cursorState
	rs      *ResultSet
	lastErr error
}

// Execute substitutes parameters into the statement, runs it against the
// engine and makes the result available for fetching. It returns the number
// of rows in the result set.
//
// A multi-statement string is executed statement by statement and the result
// reflects the final statement's output. Parameters bind to ? placeholders.
func (c *Cursor) Execute(ctx context.Context, sql string, params ...any) (int, error) {
	statements, err := prepareStatements(sql, params)
	if err != nil {
		return 0, err
	}
	return c.executeAll(ctx, statements)
}

// ExecuteMany runs the statement once per parameter set. It returns the row
// count of the last execution.
func (c *Cursor) ExecuteMany(ctx context.Context, sql string, paramSets [][]any) (int, error) {
	statements := make([]string, 0, len(paramSets))
	for _, params := range paramSets {
		prepared, err := prepareStatements(sql, params)
		if err != nil {
			return 0, err
		}
		statements = append(statements, prepared...)
	}
	return c.executeAll(ctx, statements)
}

// Submit starts the statement without blocking and returns a handle to await.
// Execute is equivalent to Submit followed by Await.
func (c *Cursor) Submit(ctx context.Context, sql string, params ...any) *Execution {
	ex := &Execution{done: make(chan struct{})}
	go func() {
		defer close(ex.done)
		ex.rows, ex.err = c.Execute(ctx, sql, params...)
	}()
	return ex
}

func (c *Cursor) executeAll(ctx context.Context, statements []string) (int, error) {
	if len(statements) == 0 {
		return 0, &InterfaceError{Op: "execute", Reason: "no statements to execute"}
	}
	if err := c.beginExecute(); err != nil {
		return 0, err
	}

	var rs *ResultSet
	for _, stmt := range statements {
		var err error
		rs, err = c.runStatement(ctx, stmt)
		if err != nil {
			c.endExecute(nil, err)
			return 0, err
		}
	}
	c.endExecute(rs, nil)
	return rs.Len(), nil
}

// beginExecute transitions the cursor into the executing state, discarding
// any unfetched prior result.
func (c *Cursor) beginExecute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case cursorClosed:
		return ErrCursorClosed
	case cursorExecuting:
		return &InterfaceError{Op: "execute", Reason: "another query is in flight on this cursor"}
	}
	if c.conn.Closed() {
		return ErrConnectionClosed
	}
	c.state = cursorExecuting
	c.rs = nil
	c.lastErr = nil
	return nil
}

// endExecute leaves the executing state: to hasResults on success, back to
// idle with the error stored on failure. A cursor closed mid-flight stays
// closed.
func (c *Cursor) endExecute(rs *ResultSet, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == cursorClosed {
		return
	}
	if err != nil {
		c.state = cursorIdle
		c.lastErr = err
		return
	}
	c.state = cursorHasResults
	c.rs = rs
}

// runStatement performs one request/response cycle for a single statement.
// The transport-level retry policy from the configuration wraps the cycle;
// the single retry after a token refresh lives inside it.
func (c *Cursor) runStatement(ctx context.Context, stmt string) (*ResultSet, error) {
	queryID := uuid.NewString()
	logger := c.conn.logger
	logger.DebugContext(ctx, "running query", "query_id", queryID, "statement", stmt)

	u, err := url.Parse(c.conn.endpoint + "/")
	if err != nil {
		return nil, &QueryError{QueryID: queryID, Err: err}
	}
	q := u.Query()
	q.Set("database", c.conn.config.Database)
	q.Set("output_format", string(c.conn.config.resultFormat()))
	q.Set("query_id", queryID)
	u.RawQuery = q.Encode()

	start := time.Now()
	var rs *ResultSet
	operation := func() error {
		body, err := c.roundTrip(ctx, u, queryID, []byte(stmt))
		if err != nil {
			return err
		}
		rs, err = c.parseResponse(body, queryID)
		if err != nil {
			// The response arrived but does not decode; retrying would
			// re-execute the statement.
			return backoff.Permanent(err)
		}
		return nil
	}
	policy := backoff.WithContext(c.conn.config.retryPolicy(), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return nil, err
	}

	logger.InfoContext(ctx, "query finished",
		"query_id", queryID, "rows", rs.Len(), "duration", time.Since(start))
	return rs, nil
}

// roundTrip sends the statement once, refreshing the token and resending
// exactly once on a 401. Server-side rejections are permanent; only transport
// failures are left retriable for the backoff policy.
func (c *Cursor) roundTrip(ctx context.Context, u *url.URL, queryID string, body []byte) ([]byte, error) {
	resp, err := c.post(ctx, u, body)
	if err != nil {
		return nil, wrapRequestError(queryID, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		sneakyBodyClose(resp.Body)
		c.conn.tokens.invalidate()
		resp, err = c.post(ctx, u, body)
		if err != nil {
			return nil, wrapRequestError(queryID, err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			sneakyBodyClose(resp.Body)
			return nil, backoff.Permanent(&AuthenticationError{
				Endpoint: c.conn.endpoint,
				Cause:    "engine rejected a freshly obtained token",
			})
		}
	}

	defer sneakyBodyClose(resp.Body)
	if err := checkStatusCodeOK(resp, queryID); err != nil {
		return nil, backoff.Permanent(err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &QueryError{QueryID: queryID, Err: err}
	}
	return data, nil
}

func (c *Cursor) post(ctx context.Context, u *url.URL, body []byte) (*http.Response, error) {
	token, err := c.conn.tokens.bearer(ctx)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set("Content-Type", "text/plain;charset=UTF-8")
	return c.conn.http.Post(ctx, u, headers, body)
}

// wrapRequestError classifies a failed request attempt: a credential
// rejection is permanent, a transport failure is left retriable for the
// backoff policy.
func wrapRequestError(queryID string, err error) error {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return backoff.Permanent(err)
	}
	return &QueryError{QueryID: queryID, Err: err}
}

func (c *Cursor) parseResponse(body []byte, queryID string) (*ResultSet, error) {
	rs, err := decodeResultSet(body, c.conn.config.resultFormat())
	if err != nil {
		if _, ok := err.(*DataError); ok {
			return nil, err
		}
		return nil, &QueryError{QueryID: queryID, StatusCode: http.StatusOK, Err: err}
	}
	return rs, nil
}

// Fetchone returns the next row of the result set, or nil once the result is
// exhausted.
func (c *Cursor) Fetchone() (Row, error) {
	rows, err := c.fetch(1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Fetchmany returns up to n rows of the result set. n <= 0 means Arraysize.
// An empty slice signals exhaustion, not an error.
func (c *Cursor) Fetchmany(n int) ([]Row, error) {
	if n <= 0 {
		n = c.Arraysize
		if n <= 0 {
			n = defaultArraysize
		}
	}
	return c.fetch(n)
}

// Fetchall returns all remaining rows of the result set.
func (c *Cursor) Fetchall() ([]Row, error) {
	return c.fetch(-1)
}

func (c *Cursor) fetch(n int) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case cursorClosed:
		return nil, ErrCursorClosed
	case cursorExecuting:
		return nil, &InterfaceError{Op: "fetch", Reason: "a query is in flight on this cursor"}
	}
	if c.rs == nil {
		return nil, &InterfaceError{Op: "fetch", Reason: "no query has been executed"}
	}
	if c.rs.format == FormatArrow {
		return nil, &InterfaceError{Op: "fetch",
			Reason: "result set is in the Arrow format; use ResultSet().ArrowRecords()"}
	}

	rows := c.rs.take(n)
	if c.rs.exhausted() {
		// Back to idle; the retained result set keeps answering fetches with
		// the exhausted indication until the next execute.
		c.state = cursorIdle
	}
	return rows, nil
}

// Rowcount returns the number of rows produced by the last query, or -1 if no
// query has been executed.
func (c *Cursor) Rowcount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rs == nil {
		return -1
	}
	return c.rs.Len()
}

// Description returns the column descriptors of the last result set, or nil
// if no query has been executed.
func (c *Cursor) Description() []Column {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rs == nil {
		return nil
	}
	return c.rs.Columns()
}

// ResultSet returns the current result set, or nil.
func (c *Cursor) ResultSet() *ResultSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rs
}

// Close closes the cursor and releases its result set. It is idempotent and
// valid from any state.
func (c *Cursor) Close() {
	c.mu.Lock()
	if c.state == cursorClosed {
		c.mu.Unlock()
		return
	}
	c.state = cursorClosed
	c.rs = nil
	c.mu.Unlock()
	c.conn.removeCursor(c)
}

// Execution is a handle to a statement submitted without blocking.
type Execution struct {
	done chan struct{}
	rows int
	err  error
}

// Done returns a channel closed when the execution completes.
func (ex *Execution) Done() <-chan struct{} {
	return ex.done
}

// Await parks until the execution completes or ctx is cancelled, and returns
// the row count of the result set.
func (ex *Execution) Await(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-ex.done:
		return ex.rows, ex.err
	}
}
