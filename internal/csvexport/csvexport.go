// Package csvexport writes flat records as CSV with a header taken from the
// first record.
package csvexport

import (
	"database/sql/driver"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Cell is one named value of a record.
type Cell struct {
	Key   string
	Value any
}

// Record is an ordered list of cells.
type Record []Cell

// RecordOf flattens a struct into a record keyed by its json field names.
// Embedded structs contribute their fields in place; fields tagged "-" are
// skipped.
func RecordOf(v any) (Record, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot export %T as a record", v)
	}
	var rec Record
	appendFields(&rec, rv)
	return rec, nil
}

// Records flattens every row with RecordOf.
func Records[T any](rows []T) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec, err := RecordOf(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func appendFields(rec *Record, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "-" {
			continue
		}
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			appendFields(rec, rv.Field(i))
			continue
		}
		if name == "" {
			name = f.Name
		}
		*rec = append(*rec, Cell{Key: name, Value: rv.Field(i).Interface()})
	}
}

// Write writes a header row with the keys of the first record, then one row
// per record in header order. Keys missing from a record are left empty.
// Nothing is written for an empty slice. Cells holding a comma, quote or
// newline are quoted with quotes doubled; encoding/csv also quotes cells
// that start with a space or tab.
func Write(w io.Writer, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	writer := csv.NewWriter(w)

	header := make([]string, len(records[0]))
	for i, c := range records[0] {
		header[i] = c.Key
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	row := make([]string, len(header))
	for n, rec := range records {
		byKey := make(map[string]any, len(rec))
		for _, c := range rec {
			byKey[c.Key] = c.Value
		}
		for i, key := range header {
			cell, err := Format(byKey[key])
			if err != nil {
				return fmt.Errorf("failed to format %s of record %d: %w", key, n, err)
			}
			row[i] = cell
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Format renders one cell. nil becomes an empty cell, times are RFC 3339
// and maps, slices and structs are JSON encoded.
func Format(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return "", nil
		}
	}
	if rv.Kind() == reflect.Pointer {
		return Format(rv.Elem().Interface())
	}

	switch t := v.(type) {
	case string:
		return t, nil
	case time.Time:
		if t.IsZero() {
			return "", nil
		}
		return t.UTC().Format(time.RFC3339), nil
	case bool:
		return strconv.FormatBool(t), nil
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.Map, reflect.Slice, reflect.Array:
		return encodeJSON(v)
	}

	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return "", err
		}
		if b, ok := dv.([]byte); ok {
			return string(b), nil
		}
		return Format(dv)
	}
	return encodeJSON(v)
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return string(b), nil
}
