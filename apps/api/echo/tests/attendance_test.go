package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollbook/core/attendance"
	"github.com/trezcool/rollbook/core/records"
)

type recordView struct {
	ID     string             `json:"id"`
	Date   string             `json:"date"`
	Blocks map[string]*string `json:"blocks"`
}

func getRecords(t *testing.T, path, token string) []recordView {
	t.Helper()
	req, rec := newAuthRequest(http.MethodGet, path, token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var views []recordView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	return views
}

func viewIDs(views []recordView) []string {
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	return ids
}

func Test_attendanceApi_attendance(t *testing.T) {
	student := studentToken(t)
	staff := staffToken(t)

	tests := []struct {
		name    string
		path    string
		token   string
		wantIDs []string
	}{
		{name: "own attendance since course start", path: "/v1/me/attendance", token: student, wantIDs: []string{"a4", "a1"}},
		{name: "since raises the floor", path: "/v1/me/attendance?since=2026-02-01", token: student, wantIDs: []string{"a4"}},
		{name: "since never lowers the floor", path: "/v1/me/attendance?since=2025-01-01", token: student, wantIDs: []string{"a4", "a1"}},
		{name: "self by alias", path: "/v1/students/sam/attendance", token: student, wantIDs: []string{"a4", "a1"}},
		{name: "staff reads anyone", path: "/v1/students/Jane/attendance", token: staff, wantIDs: []string{"a3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views := getRecords(t, tt.path, tt.token)
			assert.Equal(t, tt.wantIDs, viewIDs(views))
		})
	}

	t.Run("record shape", func(t *testing.T) {
		views := getRecords(t, "/v1/me/attendance", student)
		require.Len(t, views, 2)
		a1 := views[1]
		assert.Equal(t, "2026-01-15", a1.Date)
		require.Len(t, a1.Blocks, 4)
		assert.Equal(t, "Absent", *a1.Blocks["Block 1"])
		assert.Nil(t, a1.Blocks["Block 4"])
	})
}

func Test_attendanceApi_errors(t *testing.T) {
	student := studentToken(t)
	staff := staffToken(t)
	notFound := marshalObj(t, httpErr{Error: "not found"})
	forbidden := marshalObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "other student is hidden", path: "/v1/students/Jane/attendance", token: student, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "other profile is hidden", path: "/v1/students/Jane/profile", token: student, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "unknown alias", path: "/v1/students/Ghost/attendance", token: staff, wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "student not found"})},
		{name: "bad since", path: "/v1/me/attendance?since=yesterday", token: student, wantCode: http.StatusBadRequest, wantData: []byte(`{"since": "expected YYYY-MM-DD"}`)},
		{name: "classes are staff only", path: "/v1/classes", token: student, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "summary is staff only", path: "/v1/classes/c1/summary", token: student, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "unknown class", path: "/v1/classes/nope/summary", token: staff, wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "course not found"})},
		{name: "class without start date", path: "/v1/classes/c2/summary", token: staff, wantCode: http.StatusUnprocessableEntity, wantData: marshalObj(t, httpErr{Error: "course has no start date"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_attendanceApi_profile(t *testing.T) {
	course := "Frontend Jan 2026"
	want := marshalObj(t, attendance.Profile{Alias: "Sam", CourseID: "c1", CourseName: &course, FrontendMissed: 10})

	tests := []httpTest{
		{name: "own profile", path: "/v1/me/profile", token: studentToken(t), wantCode: http.StatusOK, wantData: want},
		{name: "staff reads profile", path: "/v1/students/Sam/profile", token: staffToken(t), wantCode: http.StatusOK, wantData: want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_attendanceApi_classes(t *testing.T) {
	staff := staffToken(t)

	t.Run("active classes", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/classes", staff)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var classes []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &classes))
		assert.Contains(t, classes, struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}{ID: "c3", Name: "ITP Evergreen"})
	})

	t.Run("summary", func(t *testing.T) {
		want := marshalObj(t, []attendance.StudentSummary{
			{Alias: "Jane", Tardies: 1, TotalBlocksRecorded: 1, PercentMissed: attendance.FoundPercent(12.5)},
			{Alias: "Sam", Absences: 1, TotalBlocksRecorded: 3, PercentMissed: attendance.FoundPercent(10)},
		})
		req, rec := newAuthRequest(http.MethodGet, "/v1/classes/c1/summary", staff)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: want}, rec)
	})
}

func Test_attendanceApi_storeFailure(t *testing.T) {
	token := studentToken(t)
	store.FailWhen(func(q records.Query, _ string) error {
		return &records.FetchError{Op: "test", Status: http.StatusServiceUnavailable, Body: "maintenance"}
	})
	defer store.FailWhen(nil)

	req, rec := newAuthRequest(http.MethodGet, "/v1/me/attendance", token)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadGateway,
		wantData: marshalObj(t, httpErr{Error: "record store unavailable"}),
	}, rec)
}

func Test_directoryApi(t *testing.T) {
	student := studentToken(t)
	staff := staffToken(t)

	tests := []struct {
		name     string
		method   string
		token    string
		wantCode int
	}{
		{name: "status is staff only", method: http.MethodGet, token: student, wantCode: http.StatusForbidden},
		{name: "refresh is staff only", method: http.MethodPost, token: student, wantCode: http.StatusForbidden},
		{name: "status", method: http.MethodGet, token: staff, wantCode: http.StatusOK},
		{name: "refresh", method: http.MethodPost, token: staff, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/v1/directory/status"
			if tt.method == http.MethodPost {
				path = "/v1/directory/refresh"
			}
			req, rec := newAuthRequest(tt.method, path, tt.token)
			app.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var st struct {
				Entries int `json:"entries"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
			assert.Equal(t, 2, st.Entries)
		})
	}
}

func Test_directoryApi_refreshFailure(t *testing.T) {
	staff := staffToken(t)
	store.FailWhen(func(q records.Query, _ string) error {
		return &records.FetchError{Op: "test", Status: http.StatusInternalServerError, Body: "boom"}
	})
	defer store.FailWhen(nil)

	req, rec := newAuthRequest(http.MethodPost, "/v1/directory/refresh", staff)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadGateway,
		wantData: marshalObj(t, httpErr{Error: "directory refresh failed"}),
	}, rec)

	// the previous snapshot still authenticates
	_ = studentToken(t)
}
