package attendance

import (
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/trezcool/rollbook/core"
)

// attendance table fields
const (
	FieldDate   = "Date"
	FieldCourse = "Course"
	FieldAlias  = "Preferred Name"
)

// courses table fields
const (
	FieldCourseName = "Name"
	FieldStartDate  = "Start Date"
	FieldEndDate    = "End Date"
)

// students table percentage fields
const (
	FieldFrontendMissed = "Frontend % Missed"
	FieldBackendMissed  = "Backend % Missed"
	FieldTCFMissed      = "TCF % Missed"
)

// status markers
const (
	markerAbsent = "Absent"
	markerTardy  = "Tardy"
)

// Blocks are the fixed time blocks of a school day.
var Blocks = [...]string{"Block 1", "Block 2", "Block 3", "Block 4"}

type (
	// Record is one attendance row. A nil block status means nothing was recorded for that block.
	Record struct {
		ID        string             `json:"id"`
		Date      time.Time          `json:"-"`
		CourseIDs []string           `json:"course_ids"`
		Blocks    map[string]*string `json:"blocks"`
	}

	CourseWindow struct {
		CourseID  string    `json:"id"`
		Name      string    `json:"name"`
		StartDate time.Time `json:"-"`
		EndDate   time.Time `json:"-"`
	}

	StudentSummary struct {
		Alias               string        `json:"alias"`
		Absences            int           `json:"absences"`
		Tardies             int           `json:"tardies"`
		TotalBlocksRecorded int           `json:"total_blocks_recorded"`
		PercentMissed       PercentMissed `json:"percent_missed"`
	}

	Profile struct {
		Alias          string  `json:"alias"`
		CourseID       string  `json:"course_id,omitempty"`
		CourseName     *string `json:"course_name"`
		FrontendMissed float64 `json:"frontend_percent_missed"`
		BackendMissed  float64 `json:"backend_percent_missed"`
		TCFMissed      float64 `json:"tcf_percent_missed"`
	}
)

func (r Record) MarshalJSON() ([]byte, error) {
	type record Record // no MarshalJSON
	return sonic.Marshal(struct {
		record
		Date string `json:"date"`
	}{record(r), core.FormatDate(r.Date)})
}

// Active reports whether day falls within the window, the whole end day included.
func (w CourseWindow) Active(day time.Time) bool {
	return !day.Before(w.StartDate) && !day.After(core.EndOfDay(w.EndDate))
}

func (w CourseWindow) MarshalJSON() ([]byte, error) {
	type window CourseWindow
	return sonic.Marshal(struct {
		window
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}{window(w), core.FormatDate(w.StartDate), core.FormatDate(w.EndDate)})
}

// JoinState tells how a secondary lookup ended.
type JoinState int

const (
	Found JoinState = iota
	NotFound
	Degraded
)

func (s JoinState) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Degraded:
		return "degraded"
	}
	return "unknown"
}

// PercentMissed is the joined missed percentage of a student. Value is only meaningful when Found.
type PercentMissed struct {
	State  JoinState
	Value  float64
	Reason string // why the lookup degraded
}

func FoundPercent(v float64) PercentMissed { return PercentMissed{State: Found, Value: v} }

func DegradedPercent(err error) PercentMissed {
	return PercentMissed{State: Degraded, Reason: err.Error()}
}

func (p PercentMissed) Known() bool {
	return p.State == Found
}

// MarshalJSON renders unknown percentages as null.
func (p PercentMissed) MarshalJSON() ([]byte, error) {
	if !p.Known() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, p.Value, 'f', -1, 64), nil
}
