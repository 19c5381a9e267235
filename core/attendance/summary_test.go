package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollbook/core/records"
	"github.com/trezcool/rollbook/storage/memstore"
	testutil "github.com/trezcool/rollbook/tests"
)

func percentStudent(id, alias string, frontend, backend, tcf float64) records.Record {
	rec := testutil.Student(id, alias, "", "")
	rec.Fields[FieldFrontendMissed] = frontend
	rec.Fields[FieldBackendMissed] = backend
	rec.Fields[FieldTCFMissed] = tcf
	return rec
}

func seedFrontendClass(store *memstore.Store) {
	store.Put(testutil.CoursesTable,
		testutil.Course("c1", "Frontend Jan 2026", "2026-01-12", "2026-04-30"),
		testutil.Course("c2", "Backend Jan 2026", "2026-01-12", "2026-04-30"),
	)
	store.Put(testutil.AttendanceTable,
		testutil.Attendance("a1", "2026-01-16", "Jane", "c1", "Absent", "Tardy", "Present", ""),
		testutil.Attendance("a2", "2026-01-15", "Bob", "c1", "Tardy"),
		testutil.Attendance("a3", "2026-01-15", "Jane", "c1", "Absent (excused)", "Present"),
		testutil.Attendance("a4", "2026-01-14", "Jane", "c2", "Absent", "Absent", "Absent", "Absent"),
		testutil.Attendance("a5", "2026-01-13", "", "c1", "Absent"),
		testutil.Attendance("a6", "2026-01-10", "Jane", "c1", "Absent"),
		testutil.Attendance("a7", "2026-01-10", "Zed", "c1", "Absent"),
		testutil.Attendance("a8", "bad date", "Bob", "c1", "Absent"),
	)
	store.Put(testutil.StudentsTable,
		percentStudent("s1", "Jane", 12.5, 40, 1),
		percentStudent("s2", "Bob", 3, 50, 2),
		percentStudent("s3", "Zed", 99, 99, 99),
	)
}

func TestService_SummarizeClass(t *testing.T) {
	svc, store, _ := newService(t)
	seedFrontendClass(store)

	got, err := svc.SummarizeClass(context.Background(), "c1")
	require.NoError(t, err)

	want := []StudentSummary{
		{Alias: "Bob", Tardies: 1, TotalBlocksRecorded: 1, PercentMissed: FoundPercent(3)},
		{Alias: "Jane", Absences: 2, Tardies: 1, TotalBlocksRecorded: 5, PercentMissed: FoundPercent(12.5)},
	}
	assert.Equal(t, want, got, "rows before the start date, of other courses or without alias are excluded")
}

func TestService_SummarizeClassDegradedPercent(t *testing.T) {
	svc, store, log := newService(t)
	seedFrontendClass(store)
	store.FailWhen(func(q records.Query, _ string) error {
		if q.Table == testutil.StudentsTable && q.Filter != nil && q.Filter.Value == "Jane" {
			return &records.FetchError{Op: "test", Status: 500, Body: "lookup failed"}
		}
		return nil
	})

	got, err := svc.SummarizeClass(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, FoundPercent(3), got[0].PercentMissed)
	assert.Equal(t, "Jane", got[1].Alias)
	assert.Equal(t, 2, got[1].Absences)
	assert.Equal(t, Degraded, got[1].PercentMissed.State)
	assert.Contains(t, got[1].PercentMissed.Reason, "lookup failed")
	assert.Len(t, log.Entries("warn"), 1)
}

func TestService_SummarizeClassErrors(t *testing.T) {
	svc, store, _ := newService(t)
	store.Put(testutil.CoursesTable,
		testutil.Course("c1", "Frontend Jan 2026", "", "2026-04-30"),
		testutil.Course("c2", "Backend Jan 2026", "12/01/2026", "2026-04-30"),
	)

	tests := []struct {
		name     string
		courseID string
		wantErr  error
	}{
		{name: "unknown course", courseID: "nope", wantErr: ErrCourseNotFound},
		{name: "no start date", courseID: "c1", wantErr: ErrCourseNotWindowed},
		{name: "malformed start date", courseID: "c2", wantErr: ErrCourseNotWindowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.SummarizeClass(context.Background(), tt.courseID)
			assert.Nil(t, got)
			assert.Equal(t, tt.wantErr, pkgerrors.Cause(err))
		})
	}
}

func TestService_SummarizeClassFetchFailure(t *testing.T) {
	svc, store, _ := newService(t)
	seedFrontendClass(store)
	store.FailWhen(func(q records.Query, cursor string) error {
		if q.Table == testutil.AttendanceTable && cursor == "4" {
			return &records.FetchError{Op: "test", Status: 503, Body: "try later"}
		}
		return nil
	})

	got, err := svc.SummarizeClass(context.Background(), "c1")
	assert.Nil(t, got, "no partial summary")
	var fetchErr *records.FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestService_SummarizeClassUncategorized(t *testing.T) {
	svc, store, _ := newService(t)
	store.Put(testutil.CoursesTable, testutil.Course("c9", "Data Science", "2026-01-12", "2026-04-30"))
	store.Put(testutil.AttendanceTable,
		testutil.Attendance("a1", "2026-01-16", "Émile", "c9", "Present"),
		testutil.Attendance("a2", "2026-01-16", "zoe", "c9", "Present"),
		testutil.Attendance("a3", "2026-01-16", "Adam", "c9", "Present"),
	)
	store.FailWhen(func(q records.Query, _ string) error {
		if q.Table == testutil.StudentsTable {
			return errors.New("percentages are not looked up")
		}
		return nil
	})

	got, err := svc.SummarizeClass(context.Background(), "c9")
	require.NoError(t, err)

	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Alias
		assert.Equal(t, FoundPercent(0), s.PercentMissed)
	}
	assert.Equal(t, []string{"Adam", "Émile", "zoe"}, names, "locale aware order")
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name      string
		want      Category
		wantField string
	}{
		{name: "Frontend Jan 2026", want: CategoryFrontend, wantField: FieldFrontendMissed},
		{name: "FE Evening", want: CategoryFrontend, wantField: FieldFrontendMissed},
		{name: "Backend Jan 2026", want: CategoryBackend, wantField: FieldBackendMissed},
		{name: "BE Weekend", want: CategoryBackend, wantField: FieldBackendMissed},
		{name: "TCF Mar 2026", want: CategoryOther, wantField: FieldTCFMissed},
		{name: "ITP Sep 2025", want: CategoryOther, wantField: FieldTCFMissed},
		{name: "Data Science", want: CategoryNone},
		{name: "frontend lowercase", want: CategoryNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategoryOf(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantField, got.Field())
		})
	}
}

func TestPercentMissed_MarshalJSON(t *testing.T) {
	b, err := json.Marshal([]PercentMissed{
		FoundPercent(12.5),
		FoundPercent(0),
		{State: NotFound},
		DegradedPercent(errors.New("timeout")),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[12.5, 0, null, null]`, string(b))
}
