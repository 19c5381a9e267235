package airtable

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/records"
	testutil "github.com/trezcool/rollbook/tests"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(core.StoreConfig{
		URL:          srv.URL + "/v0",
		APIKey:       "key123",
		BaseID:       "app123",
		PageSize:     50,
		Timeout:      time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}, &testutil.Logger{}, srv.Client())
}

func TestClient_FetchPage(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/app123/Attendance", r.URL.Path)
		assert.Equal(t, "Bearer key123", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, `{Preferred Name} = 'O\'Neil'`, q.Get("filterByFormula"))
		assert.Equal(t, "Date", q.Get("sort[0][field]"))
		assert.Equal(t, "desc", q.Get("sort[0][direction]"))
		assert.Equal(t, "50", q.Get("pageSize"))
		assert.Equal(t, "itr1/rec1", q.Get("offset"))

		_, _ = w.Write([]byte(`{
			"records": [
				{"id": "rec2", "createdTime": "2026-01-15T08:00:00.000Z", "fields": {"Date": "2026-01-15", "Preferred Name": ["O'Neil"], "Frontend % Missed": 12.5}},
				{"id": "rec3", "createdTime": "2026-01-14T08:00:00.000Z", "fields": {}}
			],
			"offset": "itr2/rec3"
		}`))
	})

	page, err := c.FetchPage(context.Background(), records.Query{
		Table:  "Attendance",
		Filter: &records.Equals{Field: "Preferred Name", Value: "O'Neil"},
		Sort:   []records.Ordering{{Field: "Date", Descending: true}},
	}, "itr1/rec1")
	require.NoError(t, err)

	assert.Equal(t, "itr2/rec3", page.Cursor)
	require.Len(t, page.Records, 2)
	rec := page.Records[0]
	assert.Equal(t, "rec2", rec.ID)
	assert.Equal(t, time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC), rec.CreatedTime.UTC())
	assert.Equal(t, "O'Neil", rec.Fields.String("Preferred Name"))
	pct, ok := rec.Fields.Float("Frontend % Missed")
	assert.True(t, ok)
	assert.Equal(t, 12.5, pct)
	assert.NotNil(t, page.Records[1].Fields)
}

func TestClient_FetchPageLastPage(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("offset"))
		assert.Empty(t, r.URL.Query().Get("filterByFormula"))
		_, _ = w.Write([]byte(`{"records": []}`))
	})

	page, err := c.FetchPage(context.Background(), records.Query{Table: "Courses"}, "")
	require.NoError(t, err)
	assert.Empty(t, page.Cursor)
	assert.Empty(t, page.Records)
}

func TestClient_FetchPageErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCalls int32
		wantFetch bool
	}{
		{name: "client error is not retried", status: http.StatusUnprocessableEntity, body: `{"error":"INVALID_FILTER"}`, wantCalls: 1, wantFetch: true},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"AUTHENTICATION_REQUIRED"}`, wantCalls: 1, wantFetch: true},
		{name: "server error is retried", status: http.StatusBadGateway, body: "bad gateway", wantCalls: 3, wantFetch: true},
		{name: "throttled is retried", status: http.StatusTooManyRequests, body: "slow down", wantCalls: 3, wantFetch: true},
		{name: "malformed body", status: http.StatusOK, body: `{"records": [`, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.FetchPage(context.Background(), records.Query{Table: "Attendance"}, "")
			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))

			var fetchErr *records.FetchError
			assert.Equal(t, tt.wantFetch, errors.As(err, &fetchErr))
			if tt.wantFetch {
				assert.Equal(t, tt.status, fetchErr.Status)
				assert.Equal(t, tt.body, fetchErr.Body)
			}
		})
	}
}

func TestClient_FetchPageRecovers(t *testing.T) {
	var calls int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"records": [{"id": "rec1", "fields": {"Name": "Frontend Jan 2026"}}]}`))
	})

	page, err := c.FetchPage(context.Background(), records.Query{Table: "Courses"}, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, "Frontend Jan 2026", page.Records[0].Fields.String("Name"))
}

func TestClient_FetchPageCancelled(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchPage(ctx, records.Query{Table: "Courses"}, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Get(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v0/app123/Courses/rec1":
			_, _ = w.Write([]byte(`{"id": "rec1", "fields": {"Name": "Frontend Jan 2026", "Start Date": "2026-01-12"}}`))
		case "/v0/app123/Courses/boom":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("forbidden"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"NOT_FOUND"}`))
		}
	})

	rec, err := c.Get(context.Background(), "Courses", "rec1")
	require.NoError(t, err)
	assert.Equal(t, "rec1", rec.ID)
	assert.Equal(t, "2026-01-12", rec.Fields.String("Start Date"))

	_, err = c.Get(context.Background(), "Courses", "missing")
	assert.Equal(t, records.ErrRecordNotFound, errors.Cause(err))

	_, err = c.Get(context.Background(), "Courses", "boom")
	var fetchErr *records.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusForbidden, fetchErr.Status)
}

func TestFormula(t *testing.T) {
	tests := []struct {
		eq   records.Equals
		want string
	}{
		{records.Equals{Field: "Preferred Name", Value: "Jane"}, `{Preferred Name} = 'Jane'`},
		{records.Equals{Field: "Preferred Name", Value: "O'Neil"}, `{Preferred Name} = 'O\'Neil'`},
		{records.Equals{Field: "Name", Value: `a\b`}, `{Name} = 'a\\b'`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Formula(tt.eq))
		})
	}
}
