package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/rollbook/core"
)

var sinceParam = "since"

// DateFloor is the earliest attendance date a listing returns.
// `?since=YYYY-MM-DD` can raise it above the course start date, never lower it.
type DateFloor struct {
	Date time.Time
}

func (df *DateFloor) Bind(ctx echo.Context, courseStart time.Time, loc *time.Location) error {
	df.Date = courseStart
	val := ctx.QueryParam(sinceParam)
	if val == "" {
		return nil
	}
	since, err := core.ParseDate(val, loc)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: sinceParam, Error: "expected YYYY-MM-DD"})
	}
	if since.After(df.Date) {
		df.Date = since
	}
	return nil
}
