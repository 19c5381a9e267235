// Package records describes the paginated external record store and drains it.
package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/trezcool/rollbook/core"
)

var (
	// errors
	ErrRecordNotFound = errors.New("record not found")
	ErrCursorLoop     = errors.New("store returned a cursor it already issued")
)

type (
	// Fields holds a record's raw values keyed by their external field names.
	// Values are decoded JSON: string, float64, bool, []interface{} or nil.
	Fields map[string]interface{}

	Record struct {
		ID          string
		CreatedTime time.Time
		Fields      Fields
	}

	// Equals matches records whose text field equals Value.
	Equals struct {
		Field string
		Value string
	}

	Ordering struct {
		Field      string
		Descending bool
	}

	Query struct {
		Table    string
		Filter   *Equals
		Sort     []Ordering
		PageSize int // 0 leaves the store default
	}

	// Page is one response of the store. An empty Cursor means there is nothing left.
	Page struct {
		Records []Record
		Cursor  string
	}

	Store interface {
		FetchPage(ctx context.Context, q Query, cursor string) (Page, error)
		Get(ctx context.Context, table, id string) (Record, error)
	}
)

// FetchError reports a non-success response of the store, keeping its raw status and body.
type FetchError struct {
	Op     string
	Status int
	Body   string
}

func (err FetchError) Error() string {
	return fmt.Sprintf("%s: store responded %d: %s", err.Op, err.Status, err.Body)
}

// String returns the text value of the field. A one-element collection yields its sole member.
func (f Fields) String(name string) string {
	switch v := f[name].(type) {
	case string:
		return core.CleanString(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []interface{}:
		if len(v) == 1 {
			if s, ok := v[0].(string); ok {
				return core.CleanString(s)
			}
		}
	case []string:
		if len(v) == 1 {
			return core.CleanString(v[0])
		}
	}
	return ""
}

// Strings returns the text members of a collection field (linked records, lookups).
func (f Fields) Strings(name string) []string {
	switch v := f[name].(type) {
	case string:
		if v = core.CleanString(v); v != "" {
			return []string{v}
		}
	case []string:
		return v
	case []interface{}:
		list := make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok {
				list = append(list, s)
			}
		}
		return list
	}
	return nil
}

// Float returns the numeric value of the field and whether it was present.
// Lookups of a single number are unwrapped like in String.
func (f Fields) Float(name string) (float64, bool) {
	switch v := f[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case []interface{}:
		if len(v) == 1 {
			n, ok := v[0].(float64)
			return n, ok
		}
	}
	return 0, false
}

// Date parses a `YYYY-MM-DD` field in loc.
func (f Fields) Date(name string, loc *time.Location) (time.Time, error) {
	s := f.String(name)
	if s == "" {
		return time.Time{}, fmt.Errorf("field %q: no date", name)
	}
	d, err := core.ParseDate(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q: %w", name, err)
	}
	return d, nil
}
