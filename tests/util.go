package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/trezcool/rollbook/core/credential"
	"github.com/trezcool/rollbook/core/records"
	"github.com/trezcool/rollbook/storage/memstore"
)

// table names used by the fixtures
const (
	StudentsTable   = "Students"
	AttendanceTable = "Attendance"
	CoursesTable    = "Courses"

	SecretKey = "test-secret-key"
)

func Deriver(t *testing.T) *credential.Deriver {
	t.Helper()
	d, err := credential.NewDeriver([]byte(SecretKey))
	if err != nil {
		t.Fatalf("Deriver() failed: %v", err)
	}
	return d
}

// Student returns an identity record. name is the display text the identity token is read from.
func Student(id, alias, name, studentID string, courseIDs ...string) records.Record {
	f := records.Fields{"Preferred Name": alias, "Name": name}
	if studentID != "" {
		f["StudentID"] = studentID
	}
	if len(courseIDs) > 0 {
		links := make([]interface{}, len(courseIDs))
		for i, c := range courseIDs {
			links[i] = c
		}
		f["Course"] = links
	}
	return records.Record{ID: id, Fields: f}
}

func Course(id, name, start, end string) records.Record {
	f := records.Fields{"Name": name}
	if start != "" {
		f["Start Date"] = start
	}
	if end != "" {
		f["End Date"] = end
	}
	return records.Record{ID: id, Fields: f}
}

// Attendance returns an attendance row. blocks are the statuses of Block 1 onwards, "" leaves a block unset.
func Attendance(id, date, alias, courseID string, blocks ...string) records.Record {
	f := records.Fields{"Date": date}
	if alias != "" {
		f["Preferred Name"] = []interface{}{alias}
	}
	if courseID != "" {
		f["Course"] = []interface{}{courseID}
	}
	for i, status := range blocks {
		if status != "" {
			f[fmt.Sprintf("Block %d", i+1)] = status
		}
	}
	return records.Record{ID: id, Fields: f}
}

// NewStore returns a small paging store so drains always cross page boundaries.
func NewStore() *memstore.Store {
	return memstore.New(2)
}

// LogEntry is one call recorded by Logger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records every call for assertions.
type Logger struct {
	mutex   sync.Mutex
	entries []LogEntry
}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

func (l *Logger) Entries(level string) []LogEntry {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var out []LogEntry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
