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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Value stores the contents of a single cell from a query result.
//
// The concrete type depends on the declared column type:
//
//	Int8..Int64      int64
//	UInt8..UInt64    uint64
//	Float32          float32
//	Float64          float64
//	Boolean          bool
//	String           string
//	Date             time.Time (midnight UTC)
//	DateTime         time.Time
//	TimestampTz      time.Time (with the declared offset)
//	Decimal(p, s)    decimal.Decimal
//	Array(T)         []Value
//
// A SQL NULL is a nil Value regardless of the declared type.
type Value any

// TypeTag identifies one of the engine's data types.
type TypeTag string

const (
	TypeInt8        TypeTag = "Int8"
	TypeUInt8       TypeTag = "UInt8"
	TypeInt16       TypeTag = "Int16"
	TypeUInt16      TypeTag = "UInt16"
	TypeInt32       TypeTag = "Int32"
	TypeUInt32      TypeTag = "UInt32"
	TypeInt64       TypeTag = "Int64"
	TypeUInt64      TypeTag = "UInt64"
	TypeFloat32     TypeTag = "Float32"
	TypeFloat64     TypeTag = "Float64"
	TypeBoolean     TypeTag = "Boolean"
	TypeString      TypeTag = "String"
	TypeDate        TypeTag = "Date"
	TypeDateTime    TypeTag = "DateTime"
	TypeTimestampTz TypeTag = "TimestampTz"
	TypeDecimal     TypeTag = "Decimal"
	TypeArray       TypeTag = "Array"
	// TypeNothing is the type of a bare NULL literal, e.g. SELECT NULL.
	TypeNothing TypeTag = "Nothing"
)

// ColumnType is the parsed form of a column's declared type descriptor.
type ColumnType struct {
	Tag TypeTag
	// Elem is the element type for Array columns.
	Elem *ColumnType
	// Precision and Scale are set for Decimal columns.
	Precision int
	Scale     int
	// Nullable reports whether the descriptor was wrapped in Nullable(...).
	Nullable bool
}

func (t ColumnType) String() string {
	var s string
	switch t.Tag {
	case TypeArray:
		s = fmt.Sprintf("Array(%s)", t.Elem)
	case TypeDecimal:
		s = fmt.Sprintf("Decimal(%d, %d)", t.Precision, t.Scale)
	default:
		s = string(t.Tag)
	}
	if t.Nullable {
		return fmt.Sprintf("Nullable(%s)", s)
	}
	return s
}

const (
	nullablePrefix = "Nullable("
	arrayPrefix    = "Array("
	decimalPrefix  = "Decimal("
)

// parseColumnType parses a declared type descriptor, such as "Int32",
// "Decimal(38, 9)" or "Array(Nullable(String))". An unrecognized descriptor
// is an error, never a fallback.
func parseColumnType(raw string) (ColumnType, error) {
	raw = strings.TrimSpace(raw)

	if inner, ok := unwrap(raw, nullablePrefix); ok {
		t, err := parseColumnType(inner)
		if err != nil {
			return ColumnType{}, err
		}
		t.Nullable = true
		return t, nil
	}

	if inner, ok := unwrap(raw, arrayPrefix); ok {
		elem, err := parseColumnType(inner)
		if err != nil {
			return ColumnType{}, err
		}
		return ColumnType{Tag: TypeArray, Elem: &elem}, nil
	}

	if inner, ok := unwrap(raw, decimalPrefix); ok {
		precision, scale, err := parseDecimalArgs(inner)
		if err != nil {
			return ColumnType{}, fmt.Errorf("invalid type %q: %w", raw, err)
		}
		return ColumnType{Tag: TypeDecimal, Precision: precision, Scale: scale}, nil
	}

	switch tag := TypeTag(raw); tag {
	case TypeInt8, TypeUInt8, TypeInt16, TypeUInt16, TypeInt32, TypeUInt32,
		TypeInt64, TypeUInt64, TypeFloat32, TypeFloat64, TypeBoolean,
		TypeString, TypeDate, TypeDateTime, TypeTimestampTz, TypeNothing:
		return ColumnType{Tag: tag}, nil
	default:
		return ColumnType{}, fmt.Errorf("unrecognized type %q", raw)
	}
}

func unwrap(raw, prefix string) (string, bool) {
	if strings.HasPrefix(raw, prefix) && strings.HasSuffix(raw, ")") {
		return raw[len(prefix) : len(raw)-1], true
	}
	return "", false
}

func parseDecimalArgs(inner string) (precision, scale int, err error) {
	parts := strings.Split(inner, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected precision and scale, got %q", inner)
	}
	if precision, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return 0, 0, err
	}
	if scale, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return 0, 0, err
	}
	return precision, scale, nil
}

var jsonNull = []byte("null")

// decodeValue decodes a single raw JSON cell under its declared type.
// Decoding is driven by the type tag; the only shape inspected is null,
// which decodes to nil under any type.
func decodeValue(cell json.RawMessage, t ColumnType) (Value, error) {
	if cell == nil || bytes.Equal(bytes.TrimSpace(cell), jsonNull) {
		return nil, nil
	}

	switch t.Tag {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		s, err := numericToken(cell)
		if err != nil {
			return nil, err
		}
		return strconv.ParseInt(s, 10, 64)
	case TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64:
		s, err := numericToken(cell)
		if err != nil {
			return nil, err
		}
		return strconv.ParseUint(s, 10, 64)
	case TypeFloat32:
		s, err := numericToken(cell)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case TypeFloat64:
		s, err := numericToken(cell)
		if err != nil {
			return nil, err
		}
		return strconv.ParseFloat(s, 64)
	case TypeDecimal:
		s, err := numericToken(cell)
		if err != nil {
			return nil, err
		}
		return decimal.NewFromString(s)
	case TypeBoolean:
		return decodeBoolean(cell)
	case TypeString:
		var s string
		if err := json.Unmarshal(cell, &s); err != nil {
			return nil, err
		}
		return s, nil
	case TypeDate:
		return decodeTextual(cell, dateLayouts)
	case TypeDateTime:
		return decodeTextual(cell, dateTimeLayouts)
	case TypeTimestampTz:
		return decodeTextual(cell, timestampTzLayouts)
	case TypeArray:
		var elems []json.RawMessage
		if err := json.Unmarshal(cell, &elems); err != nil {
			return nil, err
		}
		values := make([]Value, len(elems))
		for i, elem := range elems {
			v, err := decodeValue(elem, *t.Elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			values[i] = v
		}
		return values, nil
	case TypeNothing:
		return nil, fmt.Errorf("non-null value %s under type Nothing", cell)
	default:
		return nil, fmt.Errorf("unrecognized type %q", t.Tag)
	}
}

// numericToken returns the textual form of a numeric cell. The engine renders
// 64-bit integers and decimals as JSON strings to survive clients that read
// numbers as float64; both encodings are accepted.
func numericToken(cell json.RawMessage) (string, error) {
	var n json.Number
	if err := json.Unmarshal(cell, &n); err == nil {
		return n.String(), nil
	}
	var s string
	if err := json.Unmarshal(cell, &s); err != nil {
		return "", fmt.Errorf("invalid numeric value %s", cell)
	}
	return s, nil
}

func decodeBoolean(cell json.RawMessage) (Value, error) {
	var b bool
	if err := json.Unmarshal(cell, &b); err == nil {
		return b, nil
	}
	// Older engines render booleans as 0/1.
	var n json.Number
	if err := json.Unmarshal(cell, &n); err != nil {
		return nil, fmt.Errorf("invalid boolean value %s", cell)
	}
	switch n.String() {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return nil, fmt.Errorf("invalid boolean value %s", cell)
	}
}

var (
	dateLayouts     = []string{"2006-01-02"}
	dateTimeLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999999",
	}
	timestampTzLayouts = []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999-07",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05-07",
	}
)

func decodeTextual(cell json.RawMessage, layouts []string) (Value, error) {
	var s string
	if err := json.Unmarshal(cell, &s); err != nil {
		return nil, fmt.Errorf("invalid temporal value %s: string expected", cell)
	}
	for _, layout := range layouts {
		if v, err := time.Parse(layout, s); err == nil {
			return v, nil
		}
	}
	return nil, fmt.Errorf("invalid temporal value %q", s)
}
