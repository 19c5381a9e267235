// Package memstore is an in-memory records.Store. It pages like the hosted store and is used by tests
// and local runs without store credentials.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/rollbook/core/records"
)

const defaultPageSize = 100

// FailFunc is consulted before every call. A non-nil error is returned instead of the data.
type FailFunc func(q records.Query, cursor string) error

type Store struct {
	mutex    sync.RWMutex
	tables   map[string][]records.Record
	pageSize int
	failFunc FailFunc
	calls    int
}

func New(pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Store{tables: make(map[string][]records.Record), pageSize: pageSize}
}

// Put appends records to table, keeping insertion order as the natural order.
func (s *Store) Put(table string, recs ...records.Record) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tables[table] = append(s.tables[table], recs...)
}

// Replace swaps the content of table.
func (s *Store) Replace(table string, recs ...records.Record) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tables[table] = append([]records.Record(nil), recs...)
}

func (s *Store) FailWhen(fn FailFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failFunc = fn
}

// Calls is the number of FetchPage and Get calls served so far.
func (s *Store) Calls() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.calls
}

func (s *Store) FetchPage(ctx context.Context, q records.Query, cursor string) (records.Page, error) {
	if err := ctx.Err(); err != nil {
		return records.Page{}, err
	}

	s.mutex.Lock()
	s.calls++
	fail := s.failFunc
	s.mutex.Unlock()
	if fail != nil {
		if err := fail(q, cursor); err != nil {
			return records.Page{}, err
		}
	}

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return records.Page{}, &records.FetchError{Op: "memstore.FetchPage", Status: 422, Body: "invalid offset " + cursor}
		}
		offset = n
	}

	matched := s.query(q)
	size := q.PageSize
	if size <= 0 || size > s.pageSize {
		size = s.pageSize
	}
	if offset >= len(matched) {
		return records.Page{Records: []records.Record{}}, nil
	}
	end := offset + size
	page := records.Page{Records: matched[offset:min(end, len(matched))]}
	if end < len(matched) {
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}

func (s *Store) Get(ctx context.Context, table, id string) (records.Record, error) {
	if err := ctx.Err(); err != nil {
		return records.Record{}, err
	}

	s.mutex.Lock()
	s.calls++
	fail := s.failFunc
	s.mutex.Unlock()
	if fail != nil {
		if err := fail(records.Query{Table: table, Filter: &records.Equals{Field: "RECORD_ID()", Value: id}}, ""); err != nil {
			return records.Record{}, err
		}
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, rec := range s.tables[table] {
		if rec.ID == id {
			return rec, nil
		}
	}
	return records.Record{}, errors.Wrapf(records.ErrRecordNotFound, "%s/%s", table, id)
}

func (s *Store) query(q records.Query) []records.Record {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	recs := make([]records.Record, 0, len(s.tables[q.Table]))
	for _, rec := range s.tables[q.Table] {
		if q.Filter == nil || matches(rec.Fields, *q.Filter) {
			recs = append(recs, rec)
		}
	}
	if len(q.Sort) > 0 {
		sort.SliceStable(recs, func(i, j int) bool {
			for _, o := range q.Sort {
				a, b := recs[i].Fields.String(o.Field), recs[j].Fields.String(o.Field)
				if a == b {
					continue
				}
				if o.Descending {
					return a > b
				}
				return a < b
			}
			return false
		})
	}
	return recs
}

func matches(f records.Fields, eq records.Equals) bool {
	if f.String(eq.Field) == eq.Value {
		return true
	}
	for _, v := range f.Strings(eq.Field) {
		if v == eq.Value {
			return true
		}
	}
	return false
}
