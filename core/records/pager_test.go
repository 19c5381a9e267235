package records_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollbook/core/records"
	"github.com/trezcool/rollbook/storage/memstore"
)

func seed(n int) *memstore.Store {
	store := memstore.New(3)
	for i := 1; i <= n; i++ {
		store.Put("Attendance", records.Record{
			ID:     fmt.Sprintf("rec%02d", i),
			Fields: records.Fields{"Date": fmt.Sprintf("2026-01-%02d", i)},
		})
	}
	return store
}

func ids(recs []records.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestDrain(t *testing.T) {
	tests := []struct {
		name    string
		records int
		query   records.Query
		wantIDs []string
	}{
		{
			name:    "empty table",
			query:   records.Query{Table: "Attendance"},
			wantIDs: []string{},
		},
		{
			name:    "single page",
			records: 2,
			query:   records.Query{Table: "Attendance"},
			wantIDs: []string{"rec01", "rec02"},
		},
		{
			name:    "page boundary",
			records: 6,
			query:   records.Query{Table: "Attendance"},
			wantIDs: []string{"rec01", "rec02", "rec03", "rec04", "rec05", "rec06"},
		},
		{
			name:    "server order is kept",
			records: 7,
			query:   records.Query{Table: "Attendance", Sort: []records.Ordering{{Field: "Date", Descending: true}}},
			wantIDs: []string{"rec07", "rec06", "rec05", "rec04", "rec03", "rec02", "rec01"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := records.Drain(context.Background(), seed(tt.records), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids(got))
		})
	}
}

func TestDrain_pageFailure(t *testing.T) {
	store := seed(7)
	fetchErr := &records.FetchError{Op: "test", Status: 503, Body: "unavailable"}
	store.FailWhen(func(q records.Query, cursor string) error {
		if cursor == "6" {
			return fetchErr
		}
		return nil
	})

	got, err := records.Drain(context.Background(), store, records.Query{Table: "Attendance"})
	assert.Nil(t, got, "no partial result")
	require.Error(t, err)
	assert.Equal(t, fetchErr, errors.Cause(err))
}

func TestDrain_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := records.Drain(ctx, seed(4), records.Query{Table: "Attendance"})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, context.Canceled)
}

type loopingStore struct {
	memstore.Store
}

func (s *loopingStore) FetchPage(context.Context, records.Query, string) (records.Page, error) {
	return records.Page{Records: []records.Record{{ID: "rec"}}, Cursor: "same"}, nil
}

func TestDrain_cursorLoop(t *testing.T) {
	_, err := records.Drain(context.Background(), &loopingStore{}, records.Query{Table: "Attendance"})
	assert.ErrorIs(t, err, records.ErrCursorLoop)
}

func TestPager_Reset(t *testing.T) {
	ctx := context.Background()
	p := records.NewPager(seed(5), records.Query{Table: "Attendance"})

	var first []string
	for p.Next(ctx) {
		first = append(first, ids(p.Records())...)
	}
	require.NoError(t, p.Err())
	assert.Equal(t, 2, p.Pages())
	assert.False(t, p.Next(ctx), "exhausted pager stays exhausted")

	p.Reset()
	require.True(t, p.Next(ctx))
	assert.Equal(t, first[:3], ids(p.Records()))
	assert.Equal(t, 1, p.Pages())
}
