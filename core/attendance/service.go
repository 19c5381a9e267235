// Package attendance lists attendance rows and aggregates them per student and per class.
package attendance

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/directory"
	"github.com/trezcool/rollbook/core/records"
)

var (
	// errors
	ErrStudentNotFound   = errors.New("student not found")
	ErrCourseNotFound    = errors.New("course not found")
	ErrCourseNotWindowed = errors.New("course has no start date")
)

var nowFunc = time.Now

type (
	// Aliases resolves the alias a caller used to the directory entry.
	Aliases interface {
		Lookup(alias string) (directory.Entry, bool)
	}

	Options struct {
		StudentsTable   string
		AttendanceTable string
		CoursesTable    string
		Location        *time.Location
		PageSize        int
	}

	// Service reads the store afresh on every call, nothing is cached between calls.
	Service struct {
		store records.Store
		dir   Aliases
		log   core.Logger
		opts  Options
	}
)

func NewService(store records.Store, dir Aliases, log core.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{store: store, dir: dir, log: log, opts: opts}
}

// ListAttendance returns the rows of alias dated on or after dateFloor, newest first.
// A zero dateFloor keeps every row.
func (svc *Service) ListAttendance(ctx context.Context, alias string, dateFloor time.Time) ([]Record, error) {
	entry, ok := svc.dir.Lookup(alias)
	if !ok {
		return nil, pkgerrors.Wrapf(ErrStudentNotFound, "alias %q", alias)
	}

	rows, err := records.Drain(ctx, svc.store, records.Query{
		Table:    svc.opts.AttendanceTable,
		Filter:   &records.Equals{Field: FieldAlias, Value: entry.Alias},
		Sort:     []records.Ordering{{Field: FieldDate, Descending: true}},
		PageSize: svc.opts.PageSize,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing attendance")
	}

	list := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, ok := svc.parseRecord(row)
		if !ok {
			continue
		}
		if !dateFloor.IsZero() && rec.Date.Before(dateFloor) {
			continue
		}
		list = append(list, rec)
	}
	return list, nil
}

// ActiveCourses returns the courses running today, sorted by name.
// Courses without a valid start and end date are never active.
func (svc *Service) ActiveCourses(ctx context.Context) ([]CourseWindow, error) {
	rows, err := records.Drain(ctx, svc.store, records.Query{
		Table:    svc.opts.CoursesTable,
		Sort:     []records.Ordering{{Field: FieldCourseName}},
		PageSize: svc.opts.PageSize,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing courses")
	}

	today := nowFunc().In(svc.opts.Location)
	active := make([]CourseWindow, 0)
	for _, row := range rows {
		w, err := svc.parseWindow(row)
		if err != nil {
			continue
		}
		if _, err := row.Fields.Date(FieldEndDate, svc.opts.Location); err != nil {
			continue
		}
		if w.Active(today) {
			active = append(active, w)
		}
	}
	return active, nil
}

// ListActiveCourses returns the names of the courses running today.
func (svc *Service) ListActiveCourses(ctx context.Context) ([]string, error) {
	courses, err := svc.ActiveCourses(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(courses))
	for i, c := range courses {
		names[i] = c.Name
	}
	return names, nil
}

func (svc *Service) parseRecord(row records.Record) (Record, bool) {
	date, err := row.Fields.Date(FieldDate, svc.opts.Location)
	if err != nil {
		svc.log.Debug("attendance: dropping row", map[string]interface{}{"record": row.ID, "reason": err.Error()})
		return Record{}, false
	}
	rec := Record{
		ID:        row.ID,
		Date:      date,
		CourseIDs: row.Fields.Strings(FieldCourse),
		Blocks:    make(map[string]*string, len(Blocks)),
	}
	for _, block := range Blocks {
		if status := row.Fields.String(block); status != "" {
			rec.Blocks[block] = &status
		} else {
			rec.Blocks[block] = nil
		}
	}
	return rec, true
}

// parseWindow requires a start date, the end date is left zero when missing.
func (svc *Service) parseWindow(row records.Record) (CourseWindow, error) {
	w := CourseWindow{CourseID: row.ID, Name: row.Fields.String(FieldCourseName)}
	start, err := row.Fields.Date(FieldStartDate, svc.opts.Location)
	if err != nil {
		return w, pkgerrors.Wrapf(ErrCourseNotWindowed, "course %s: %v", row.ID, err)
	}
	w.StartDate = start
	if end, err := row.Fields.Date(FieldEndDate, svc.opts.Location); err == nil {
		w.EndDate = end
	}
	return w, nil
}
