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
	"log/slog"
	"sync"
)

// Connection owns the engine configuration and the shared token manager, and
// is the factory for cursors.
type Connection struct {
	config   *Config
	endpoint string
	http     HTTPClient
	tokens   *tokenManager
	logger   *slog.Logger

	mu      sync.Mutex
	cursors []*Cursor
	closed  bool
}

// Connect validates the configuration and creates a new connection.
//
// When the configuration names an engine instead of giving its URL, the
// engine endpoint is resolved through the management API, which is the only
// network traffic Connect produces.
func Connect(ctx context.Context, config *Config) (*Connection, error) {
	if config.Database == "" {
		return nil, &InterfaceError{Op: "connect", Reason: "database is required"}
	}
	if config.APIKey == "" && (config.Username == "" || config.Password == "") {
		return nil, &InterfaceError{Op: "connect", Reason: "credentials are required"}
	}
	if config.Endpoint != "" && config.EngineName != "" {
		return nil, &InterfaceError{Op: "connect", Reason: "both endpoint and engine name are provided; provide only one"}
	}
	if config.Endpoint == "" && config.EngineName == "" {
		return nil, &InterfaceError{Op: "connect", Reason: "neither endpoint nor engine name is provided; provide one"}
	}

	client := NewHTTPClient()
	tokens := newTokenManager(client, config)

	endpoint := config.Endpoint
	if endpoint == "" {
		resolved, err := resolveEngineEndpoint(ctx, client, tokens, config)
		if err != nil {
			return nil, err
		}
		endpoint = resolved
	}

	return &Connection{
		config:   config,
		endpoint: fixURLScheme(endpoint),
		http:     client,
		tokens:   tokens,
		logger:   config.logger(),
	}, nil
}

// Cursor creates a new cursor bound to this connection.
//
// A cursor is created even on a closed connection; its first execute fails
// with ErrConnectionClosed.
func (conn *Connection) Cursor() *Cursor {
	c := &Cursor{conn: conn, Arraysize: defaultArraysize}
	conn.mu.Lock()
	conn.cursors = append(conn.cursors, c)
	conn.mu.Unlock()
	return c
}

// Close closes the connection, all cursors it produced, and releases the
// cached credential. It is idempotent.
func (conn *Connection) Close() error {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return nil
	}
	conn.closed = true
	cursors := conn.cursors
	conn.cursors = nil
	conn.mu.Unlock()

	for _, c := range cursors {
		c.Close()
	}
	conn.tokens.invalidate()
	return nil
}

// Closed reports whether the connection has been closed.
func (conn *Connection) Closed() bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.closed
}

func (conn *Connection) removeCursor(cursor *Cursor) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	for i, c := range conn.cursors {
		if c == cursor {
			conn.cursors = append(conn.cursors[:i], conn.cursors[i+1:]...)
			return
		}
	}
}

// discardHandler drops every record. Used when no logger is configured.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
