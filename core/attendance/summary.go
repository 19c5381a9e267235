package attendance

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/trezcool/rollbook/core/records"
)

// joinConcurrency bounds the percentage lookups in flight for one summary.
const joinConcurrency = 4

// Category selects which missed-percentage field applies to a course.
type Category int

const (
	CategoryNone Category = iota
	CategoryFrontend
	CategoryBackend
	CategoryOther
)

// CategoryOf infers the category from the course display name.
func CategoryOf(courseName string) Category {
	switch {
	case strings.Contains(courseName, "Frontend"), strings.Contains(courseName, "FE"):
		return CategoryFrontend
	case strings.Contains(courseName, "Backend"), strings.Contains(courseName, "BE"):
		return CategoryBackend
	case strings.Contains(courseName, "TCF"), strings.Contains(courseName, "ITP"):
		return CategoryOther
	}
	return CategoryNone
}

// Field is the students table field holding the percentage, "" for CategoryNone.
func (c Category) Field() string {
	switch c {
	case CategoryFrontend:
		return FieldFrontendMissed
	case CategoryBackend:
		return FieldBackendMissed
	case CategoryOther:
		return FieldTCFMissed
	}
	return ""
}

// SummarizeClass folds the attendance of courseID, from its start date on, into one summary per
// student sorted by alias. A failed percentage lookup degrades that student's PercentMissed only.
func (svc *Service) SummarizeClass(ctx context.Context, courseID string) ([]StudentSummary, error) {
	course, err := svc.store.Get(ctx, svc.opts.CoursesTable, courseID)
	if err != nil {
		if errors.Cause(err) == records.ErrRecordNotFound {
			return nil, errors.Wrapf(ErrCourseNotFound, "course %s", courseID)
		}
		return nil, errors.Wrap(err, "resolving course")
	}
	window, err := svc.parseWindow(course)
	if err != nil {
		return nil, err
	}

	rows, err := records.Drain(ctx, svc.store, records.Query{
		Table:    svc.opts.AttendanceTable,
		PageSize: svc.opts.PageSize,
	})
	if err != nil {
		return nil, errors.Wrap(err, "summarizing class")
	}

	summaries := svc.fold(window, rows)

	field := CategoryOf(window.Name).Field()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(joinConcurrency)
	for i := range summaries {
		sum := &summaries[i] // each goroutine owns its slot
		g.Go(func() error {
			sum.PercentMissed = svc.percentMissed(gctx, sum.Alias, field)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collator := collate.New(language.English)
	sort.SliceStable(summaries, func(i, j int) bool {
		return collator.CompareString(summaries[i].Alias, summaries[j].Alias) < 0
	})
	return summaries, nil
}

// fold groups the in-window rows of the course by alias, in order of first appearance.
func (svc *Service) fold(window CourseWindow, rows []records.Record) []StudentSummary {
	index := make(map[string]int)
	summaries := make([]StudentSummary, 0)

	for _, row := range rows {
		if !contains(row.Fields.Strings(FieldCourse), window.CourseID) {
			continue
		}
		alias := row.Fields.String(FieldAlias)
		if alias == "" {
			continue
		}
		rec, ok := svc.parseRecord(row)
		if !ok || rec.Date.Before(window.StartDate) {
			continue
		}

		i, seen := index[alias]
		if !seen {
			i = len(summaries)
			index[alias] = i
			summaries = append(summaries, StudentSummary{Alias: alias})
		}
		sum := &summaries[i]
		for _, block := range Blocks {
			status := rec.Blocks[block]
			if status == nil {
				continue
			}
			switch {
			case strings.Contains(*status, markerAbsent):
				sum.Absences++
			case strings.Contains(*status, markerTardy):
				sum.Tardies++
			}
			sum.TotalBlocksRecorded++
		}
	}
	return summaries
}

func (svc *Service) percentMissed(ctx context.Context, alias, field string) PercentMissed {
	if field == "" {
		return FoundPercent(0)
	}
	recs, err := records.Drain(ctx, svc.store, records.Query{
		Table:    svc.opts.StudentsTable,
		Filter:   &records.Equals{Field: FieldAlias, Value: alias},
		PageSize: svc.opts.PageSize,
	})
	if err != nil {
		svc.log.Warn("attendance: percent missed lookup failed", err, map[string]interface{}{"alias": alias})
		return DegradedPercent(err)
	}
	if len(recs) == 0 {
		return PercentMissed{State: NotFound}
	}
	v, _ := recs[0].Fields.Float(field)
	return FoundPercent(v)
}

func contains(list []string, s string) bool {
	for _, el := range list {
		if el == s {
			return true
		}
	}
	return false
}
