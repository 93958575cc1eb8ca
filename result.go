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
	"encoding/json"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
)

// ResultFormat defines the serialization of a query's result set.
type ResultFormat string

const (
	// FormatJSONCompact renders the result as a JSON envelope with typed
	// column descriptors and a row-major value matrix.
	FormatJSONCompact ResultFormat = "JSON_Compact"
	// FormatArrow renders the result rows as a BASE64 encoded Arrow IPC stream.
	FormatArrow ResultFormat = "Arrow"
)

// Column describes a single column of a result set.
type Column struct {
	// Name is the column name.
	Name string
	// Type is the parsed declared type.
	Type ColumnType
}

// Row is one decoded result row.
type Row []Value

// ResultSet stores the result of a statement execution. It is immutable once
// constructed; the cursor that produced it replaces it on the next execute.
type ResultSet struct {
	columns []Column
	rows    []Row
	format  ResultFormat

	// records holds the decoded batches when the format is Arrow.
	records []arrow.Record

	pos int
}

// Columns returns the column descriptors of the result set.
func (rs *ResultSet) Columns() []Column {
	return rs.columns
}

// Len returns the total number of rows in the result set.
func (rs *ResultSet) Len() int {
	if rs.format == FormatArrow {
		n := 0
		for _, record := range rs.records {
			n += int(record.NumRows())
		}
		return n
	}
	return len(rs.rows)
}

// ArrowRecords returns the result rows as Arrow record batches.
//
// This method is only valid if the result set is of the Arrow format.
func (rs *ResultSet) ArrowRecords() ([]arrow.Record, error) {
	if rs.format != FormatArrow {
		return nil, fmt.Errorf("unexpected result set format: %s", rs.format)
	}
	return rs.records, nil
}

// take advances the read position by at most n rows and returns them.
// n < 0 means all remaining rows.
func (rs *ResultSet) take(n int) []Row {
	left := rs.pos
	right := len(rs.rows)
	if n >= 0 && left+n < right {
		right = left + n
	}
	rs.pos = right
	return rs.rows[left:right]
}

// exhausted reports whether every row has been fetched.
func (rs *ResultSet) exhausted() bool {
	return rs.pos >= len(rs.rows)
}

type wireColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type wireEnvelope struct {
	Columns []wireColumn    `json:"columns"`
	Data    json.RawMessage `json:"data"`
	Rows    int64           `json:"rows"`
}

// decodeResultSet parses a response body into a ResultSet. An empty body is a
// statement with no output, such as an INSERT, and yields an empty result.
// A body that does not match the envelope shape is a wire-format error; a
// cell that does not decode under its declared type is a DataError.
func decodeResultSet(body []byte, format ResultFormat) (*ResultSet, error) {
	if len(body) == 0 {
		return &ResultSet{format: format}, nil
	}

	var envelope wireEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid response envelope: %w", err)
	}

	columns := make([]Column, len(envelope.Columns))
	for i, c := range envelope.Columns {
		t, err := parseColumnType(c.Type)
		if err != nil {
			return nil, &DataError{Row: -1, Column: c.Name, Cause: err.Error()}
		}
		columns[i] = Column{Name: c.Name, Type: t}
	}

	rs := &ResultSet{columns: columns, format: format}

	if format == FormatArrow {
		var encoded string
		if err := json.Unmarshal(envelope.Data, &encoded); err != nil {
			return nil, fmt.Errorf("invalid response envelope: %w", err)
		}
		records, err := decodeArrowRecords([]byte(encoded))
		if err != nil {
			return nil, &DataError{Row: -1, Cause: err.Error()}
		}
		rs.records = records
		return rs, nil
	}

	var data [][]json.RawMessage
	if envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, fmt.Errorf("invalid response envelope: %w", err)
		}
	}

	rs.rows = make([]Row, len(data))
	for i, raw := range data {
		if len(raw) != len(columns) {
			return nil, &DataError{Row: i, Cause: fmt.Sprintf(
				"row has %d values, expected %d", len(raw), len(columns))}
		}
		row := make(Row, len(raw))
		for j, cell := range raw {
			v, err := decodeValue(cell, columns[j].Type)
			if err != nil {
				return nil, &DataError{Row: i, Column: columns[j].Name, Cause: err.Error()}
			}
			row[j] = v
		}
		rs.rows[i] = row
	}
	return rs, nil
}
