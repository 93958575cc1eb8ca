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
	"fmt"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/require"
)

func TestDecodeResultSet(t *testing.T) {
	body := []byte(`{
		"columns": [
			{"name": "id", "type": "UInt64"},
			{"name": "name", "type": "Nullable(String)"},
			{"name": "score", "type": "Decimal(20, 6)"},
			{"name": "tags", "type": "Array(String)"},
			{"name": "seen", "type": "DateTime"}
		],
		"data": [
			[1, "amber", "98.000001", ["a", "b"], "2023-08-01 10:00:00"],
			[2, null, "-0.500000", [], "2023-08-02 11:30:00"]
		],
		"rows": 2
	}`)

	rs, err := decodeResultSet(body, FormatJSONCompact)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	require.Len(t, rs.Columns(), 5)
	require.True(t, rs.Columns()[1].Type.Nullable)

	snaps.MatchSnapshot(t, fmt.Sprintf("%v", rs.Columns()))
	snaps.MatchSnapshot(t, fmt.Sprintf("%v", rs.rows))
}

func TestDecodeResultSetEmptyBody(t *testing.T) {
	// INSERT and DDL statements answer with an empty body.
	rs, err := decodeResultSet(nil, FormatJSONCompact)
	require.NoError(t, err)
	require.Equal(t, 0, rs.Len())
	require.True(t, rs.exhausted())
}

func TestDecodeResultSetRowWidthMismatch(t *testing.T) {
	body := []byte(`{"columns":[{"name":"a","type":"Int32"}],"data":[[1, 2]],"rows":1}`)
	_, err := decodeResultSet(body, FormatJSONCompact)
	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	require.Equal(t, 0, dataErr.Row)
}

func TestDecodeResultSetUnknownType(t *testing.T) {
	body := []byte(`{"columns":[{"name":"a","type":"Varchar"}],"data":[["x"]],"rows":1}`)
	_, err := decodeResultSet(body, FormatJSONCompact)
	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	require.Equal(t, "a", dataErr.Column)
}

func TestResultSetTake(t *testing.T) {
	rs := &ResultSet{rows: []Row{{int64(1)}, {int64(2)}, {int64(3)}}}
	require.Len(t, rs.take(2), 2)
	require.False(t, rs.exhausted())
	require.Len(t, rs.take(-1), 1)
	require.True(t, rs.exhausted())
	require.Empty(t, rs.take(1))
}
