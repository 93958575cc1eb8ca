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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const loginPath = "/auth/v1/login"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	// Expiry is the number of seconds the token stays valid.
	Expiry int64 `json:"expiry"`
}

// tokenManager obtains and caches the bearer token for a connection. It is
// shared by every cursor of the connection and is safe for concurrent use.
//
// Reads of the cached token take the read lock. A refresh is coordinated
// through a singleflight group so that concurrent callers observing a missing
// or expired token trigger exactly one login request and all receive its
// result.
type tokenManager struct {
	http        HTTPClient
	apiEndpoint string
	username    string
	password    string
	apiKey      string

	mu      sync.RWMutex
	group   singleflight.Group
	token   string
	expires time.Time
}

func newTokenManager(http HTTPClient, config *Config) *tokenManager {
	return &tokenManager{
		http:        http,
		apiEndpoint: fixURLScheme(config.apiEndpoint()),
		username:    config.Username,
		password:    config.Password,
		apiKey:      config.APIKey,
	}
}

// bearer returns a currently valid token, fetching or refreshing it if the
// cached one is absent, expired or invalidated.
func (m *tokenManager) bearer(ctx context.Context) (string, error) {
	m.mu.RLock()
	token, ok := m.cached()
	m.mu.RUnlock()
	if ok {
		return token, nil
	}

	v, err, _ := m.group.Do("login", func() (any, error) {
		// A concurrent caller may have refreshed while this one was waiting
		// for the flight slot.
		m.mu.RLock()
		token, ok := m.cached()
		m.mu.RUnlock()
		if ok {
			return token, nil
		}

		token, expires, err := m.fetch(ctx)
		if err != nil {
			return "", err
		}
		m.mu.Lock()
		m.token = token
		m.expires = expires
		m.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// invalidate marks the cached token stale. It performs no network I/O; the
// next bearer call refreshes.
func (m *tokenManager) invalidate() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

// cached returns the token if it is present and not expired.
// Callers must hold the lock.
func (m *tokenManager) cached() (string, bool) {
	if m.token == "" {
		return "", false
	}
	if !m.expires.IsZero() && !m.expires.After(time.Now()) {
		return "", false
	}
	return m.token, true
}

func (m *tokenManager) fetch(ctx context.Context) (string, time.Time, error) {
	// A static API key is the token itself and never expires.
	if m.apiKey != "" {
		return m.apiKey, time.Time{}, nil
	}

	u, err := url.Parse(m.apiEndpoint + loginPath)
	if err != nil {
		return "", time.Time{}, &AuthenticationError{Endpoint: m.apiEndpoint, Cause: err.Error()}
	}
	body, err := json.Marshal(&loginRequest{Username: m.username, Password: m.password})
	if err != nil {
		return "", time.Time{}, &AuthenticationError{Endpoint: m.apiEndpoint, Cause: err.Error()}
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json;charset=UTF-8")
	resp, err := m.http.Post(ctx, u, headers, body)
	if err != nil {
		return "", time.Time{}, &AuthenticationError{Endpoint: m.apiEndpoint, Cause: err.Error()}
	}
	defer sneakyBodyClose(resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, &AuthenticationError{Endpoint: m.apiEndpoint, Cause: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, &AuthenticationError{Endpoint: m.apiEndpoint, Cause: serverMessage(data)}
	}

	var login loginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		return "", time.Time{}, &AuthenticationError{Endpoint: m.apiEndpoint, Cause: err.Error()}
	}
	if login.AccessToken == "" {
		return "", time.Time{}, &AuthenticationError{Endpoint: m.apiEndpoint, Cause: "no access token in response"}
	}
	return login.AccessToken, time.Now().Add(time.Duration(login.Expiry) * time.Second), nil
}

// fixURLScheme prepends https:// to an endpoint given without a scheme.
func fixURLScheme(endpoint string) string {
	if len(endpoint) == 0 {
		return endpoint
	}
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return endpoint
	}
	return fmt.Sprintf("https://%s", endpoint)
}
