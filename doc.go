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

/*
Package emberdb provides a lightweight client for running SQL statements
against an EmberDB engine over HTTP.

# Connecting

Use Connect to create a connection. Either the engine URL or the engine name
can be given; a name is resolved through the management API:

	conn, err := emberdb.Connect(ctx, &emberdb.Config{
		Endpoint: "https://<engine-host>",
		Database: "sales",
		Username: "reports@example.com",
		Password: "...",
	})

The connection authenticates lazily: a bearer token is fetched from the
identity endpoint on the first query and refreshed transparently when it
expires or is rejected.

# Running Queries

Create a cursor and execute statements through it. Parameters bind to ?
placeholders with type-aware quoting:

	cursor := conn.Cursor()
	_, err := cursor.Execute(ctx, "SELECT id, total FROM orders WHERE total > ?", 42)
	if err != nil {
		return err
	}
	rows, err := cursor.Fetchall()

Cell values decode under the column types the engine declares; see Value for
the mapping to Go types.

# Awaiting Queries

Submit starts a statement without blocking and returns a handle:

	ex := cursor.Submit(ctx, "SELECT count(*) FROM events")
	// ... other work ...
	if _, err := ex.Await(ctx); err != nil {
		return err
	}
	row, err := cursor.Fetchone()
*/
package emberdb
