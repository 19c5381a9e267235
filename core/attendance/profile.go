package attendance

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/rollbook/core/records"
)

// ComposeProfile resolves the student record of alias with its first linked course.
// A course that cannot be fetched leaves CourseName nil. Missing percentages are zero.
func (svc *Service) ComposeProfile(ctx context.Context, alias string) (Profile, error) {
	recs, err := records.Drain(ctx, svc.store, records.Query{
		Table:    svc.opts.StudentsTable,
		Filter:   &records.Equals{Field: FieldAlias, Value: alias},
		PageSize: svc.opts.PageSize,
	})
	if err != nil {
		return Profile{}, errors.Wrap(err, "composing profile")
	}
	if len(recs) == 0 {
		return Profile{}, errors.Wrapf(ErrStudentNotFound, "alias %q", alias)
	}
	student := recs[0]

	prof := Profile{Alias: student.Fields.String(FieldAlias)}
	prof.FrontendMissed, _ = student.Fields.Float(FieldFrontendMissed)
	prof.BackendMissed, _ = student.Fields.Float(FieldBackendMissed)
	prof.TCFMissed, _ = student.Fields.Float(FieldTCFMissed)

	if courses := student.Fields.Strings(FieldCourse); len(courses) > 0 {
		prof.CourseID = courses[0]
		course, err := svc.store.Get(ctx, svc.opts.CoursesTable, prof.CourseID)
		if err != nil {
			if ctx.Err() != nil {
				return Profile{}, ctx.Err()
			}
			svc.log.Warn("attendance: profile course lookup failed", err, map[string]interface{}{
				"alias":  alias,
				"course": prof.CourseID,
			})
		} else if name := course.Fields.String(FieldCourseName); name != "" {
			prof.CourseName = &name
		}
	}
	return prof, nil
}
