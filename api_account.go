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
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// Management API paths for resolving an engine name to its endpoint.
const (
	accountPath         = "/iam/v2/account"
	accountByNamePath   = "/iam/v2/accounts:getIdByName"
	engineByNamePathFmt = "/core/v1/accounts/%s/engines:getIdByName"
	enginePathFmt       = "/core/v1/accounts/%s/engines/%s"
)

// engineResolver turns an engine name into its query endpoint through the
// management API: account id, then engine id, then the engine record.
type engineResolver struct {
	client HTTPClient
	tokens *tokenManager
	api    string
	engine string
}

func resolveEngineEndpoint(ctx context.Context, client HTTPClient, tokens *tokenManager, config *Config) (string, error) {
	r := &engineResolver{
		client: client,
		tokens: tokens,
		api:    fixURLScheme(config.apiEndpoint()),
		engine: config.EngineName,
	}
	return r.resolve(ctx, config.AccountName)
}

func (r *engineResolver) resolve(ctx context.Context, accountName string) (string, error) {
	accountID, err := r.accountID(ctx, accountName)
	if err != nil {
		return "", err
	}

	body, status, err := r.get(ctx, r.api+fmt.Sprintf(engineByNamePathFmt, accountID), url.Values{
		"engine_name": []string{r.engine},
	})
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		// Authentication already succeeded, so a 404 here means the engine
		// itself is missing.
		return "", r.fail(status, "engine does not exist")
	}
	if status != http.StatusOK {
		return "", r.fail(status, serverMessage(body))
	}
	engineID := gjson.GetBytes(body, "engine_id.engine_id").String()
	if engineID == "" {
		return "", r.fail(status, "no engine id in response")
	}

	body, status, err = r.get(ctx, r.api+fmt.Sprintf(enginePathFmt, accountID, engineID), nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", r.fail(status, serverMessage(body))
	}
	endpoint := gjson.GetBytes(body, "engine.endpoint").String()
	if endpoint == "" {
		return "", r.fail(status, "no endpoint in response")
	}
	return endpoint, nil
}

func (r *engineResolver) accountID(ctx context.Context, accountName string) (string, error) {
	if accountName == "" {
		body, status, err := r.get(ctx, r.api+accountPath, nil)
		if err != nil {
			return "", err
		}
		if status != http.StatusOK {
			return "", r.fail(status, fmt.Sprintf("unable to retrieve account: %s", serverMessage(body)))
		}
		id := gjson.GetBytes(body, "account.id").String()
		if id == "" {
			return "", r.fail(status, "no account id in response")
		}
		return id, nil
	}

	body, status, err := r.get(ctx, r.api+accountByNamePath, url.Values{
		"account_name": []string{accountName},
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", r.fail(status, fmt.Sprintf("unable to retrieve account %q: %s", accountName, serverMessage(body)))
	}
	id := gjson.GetBytes(body, "account_id").String()
	if id == "" {
		return "", r.fail(status, fmt.Sprintf("no id for account %q in response", accountName))
	}
	return id, nil
}

// get performs an authenticated GET against the management API and returns
// the body and status. Transport failures are returned as errors; non-2xx
// statuses are left to the caller. A credential failure surfaces as the token
// manager's AuthenticationError, untouched.
func (r *engineResolver) get(ctx context.Context, rawURL string, query url.Values) ([]byte, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, r.fail(0, err.Error())
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	token, err := r.tokens.bearer(ctx)
	if err != nil {
		return nil, 0, err
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Get(ctx, u, headers)
	if err != nil {
		return nil, 0, r.fail(0, fmt.Sprintf("unable to reach management API: %v", err))
	}
	defer sneakyBodyClose(resp.Body)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, r.fail(0, err.Error())
	}
	return body, resp.StatusCode, nil
}

func (r *engineResolver) fail(status int, reason string) *EngineResolutionError {
	return &EngineResolutionError{EngineName: r.engine, StatusCode: status, Reason: reason}
}
