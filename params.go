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
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// splitStatements splits a SQL string into semicolon-separated statements.
// Semicolons inside string literals, quoted identifiers and comments do not
// split. Statements that are empty or all comments are dropped.
func splitStatements(sql string) []string {
	var statements []string
	var b strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(b.String())
		if stmt != "" && !statementIsEmpty(stmt) {
			statements = append(statements, stmt)
		}
		b.Reset()
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch c {
		case ';':
			flush()
		case '\'', '"', '`':
			j := scanQuoted(sql, i, c)
			b.WriteString(sql[i:j])
			i = j - 1
		case '-':
			if i+1 < len(sql) && sql[i+1] == '-' {
				j := scanLineComment(sql, i)
				b.WriteString(sql[i:j])
				i = j - 1
			} else {
				b.WriteByte(c)
			}
		case '/':
			if i+1 < len(sql) && sql[i+1] == '*' {
				j := scanBlockComment(sql, i)
				b.WriteString(sql[i:j])
				i = j - 1
			} else {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	flush()
	return statements
}

// formatStatement substitutes ? placeholders in a single statement with the
// formatted parameter values. Placeholders inside literals and comments are
// left alone. The parameter count must match the placeholder count exactly.
func formatStatement(stmt string, params []any) (string, error) {
	if len(params) == 0 {
		return stmt, nil
	}

	var b strings.Builder
	idx := 0
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch c {
		case '?':
			if idx >= len(params) {
				return "", &DataError{Row: -1, Cause: fmt.Sprintf(
					"not enough parameters provided for substitution: given %d, found one more", len(params))}
			}
			formatted, err := formatValue(params[idx])
			if err != nil {
				return "", err
			}
			b.WriteString(formatted)
			idx++
		case '\'', '"', '`':
			j := scanQuoted(stmt, i, c)
			b.WriteString(stmt[i:j])
			i = j - 1
		case '-':
			if i+1 < len(stmt) && stmt[i+1] == '-' {
				j := scanLineComment(stmt, i)
				b.WriteString(stmt[i:j])
				i = j - 1
			} else {
				b.WriteByte(c)
			}
		case '/':
			if i+1 < len(stmt) && stmt[i+1] == '*' {
				j := scanBlockComment(stmt, i)
				b.WriteString(stmt[i:j])
				i = j - 1
			} else {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	if idx < len(params) {
		return "", &DataError{Row: -1, Cause: fmt.Sprintf(
			"too many parameters provided for substitution: given %d, used only %d", len(params), idx)}
	}
	return b.String(), nil
}

// scanQuoted returns the index just past a quoted region opened at start.
// Backslash escapes are honored inside single quotes.
func scanQuoted(s string, start int, quote byte) int {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if quote == '\'' {
				i++
			}
		case quote:
			return i + 1
		}
	}
	return len(s)
}

// statementIsEmpty reports whether a statement holds nothing but whitespace
// and comments.
func statementIsEmpty(s string) bool {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			i = scanLineComment(s, i) - 1
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i = scanBlockComment(s, i) - 1
		default:
			return false
		}
	}
	return true
}

func scanLineComment(s string, start int) int {
	for i := start; i < len(s); i++ {
		if s[i] == '\n' {
			return i + 1
		}
	}
	return len(s)
}

func scanBlockComment(s string, start int) int {
	for i := start + 2; i+1 < len(s); i++ {
		if s[i] == '*' && s[i+1] == '/' {
			return i + 2
		}
	}
	return len(s)
}

var paramEscaper = strings.NewReplacer(
	"\x00", "\\0",
	"\\", "\\\\",
	"'", "\\'",
)

// formatValue renders a parameter as a SQL literal under safe quoting rules.
// Strings are quoted and escaped, numbers and booleans are rendered
// literally, nil becomes NULL, times are normalized to UTC, and slices become
// array literals.
func formatValue(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		return "'" + paramEscaper.Replace(v) + "'", nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case decimal.Decimal:
		return v.String(), nil
	case time.Time:
		return "'" + v.UTC().Format("2006-01-02 15:04:05") + "'", nil
	}

	// Typed slices render as array literals, element by element.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		elems := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			formatted, err := formatValue(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}
			elems[i] = formatted
		}
		return "[" + strings.Join(elems, ", ") + "]", nil
	}

	return "", &DataError{Row: -1, Cause: fmt.Sprintf("unsupported parameter type %T", v)}
}

// prepareStatements splits the SQL text and substitutes parameters. SQL with
// nothing to execute is rejected before reaching the engine. Parameter
// substitution over a multi-statement string is not supported.
func prepareStatements(sql string, params []any) ([]string, error) {
	statements := splitStatements(sql)
	if len(statements) == 0 {
		return nil, &InterfaceError{Op: "execute", Reason: "statement is empty"}
	}
	if len(params) == 0 {
		return statements, nil
	}
	if len(statements) > 1 {
		return nil, &InterfaceError{Op: "execute", Reason: "formatting multi-statement queries is not supported"}
	}
	formatted, err := formatStatement(statements[0], params)
	if err != nil {
		return nil, err
	}
	return []string{formatted}, nil
}
