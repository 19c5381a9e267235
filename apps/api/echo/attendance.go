package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/attendance"
)

type attendanceApi struct {
	svc  Attendance
	conf *core.Config
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc Attendance, conf *core.Config) {
	api := attendanceApi{svc: svc, conf: conf}

	mg := g.Group("/me", jwt)
	mg.GET("/attendance", api.myAttendance)
	mg.GET("/profile", api.myProfile)

	sg := g.Group("/students/:alias", jwt, selfOrStaffMiddleware())
	sg.GET("/attendance", api.studentAttendance)
	sg.GET("/profile", api.studentProfile)

	cg := g.Group("/classes", jwt, staffMiddleware())
	cg.GET("", api.activeClasses)
	cg.GET("/:id/summary", api.classSummary)
}

// Handlers

func (api *attendanceApi) myAttendance(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	return api.listAttendance(ctx, claims.Alias)
}

func (api *attendanceApi) myProfile(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	return api.composeProfile(ctx, claims.Alias)
}

func (api *attendanceApi) studentAttendance(ctx echo.Context) error {
	return api.listAttendance(ctx, ctx.Param("alias"))
}

func (api *attendanceApi) studentProfile(ctx echo.Context) error {
	return api.composeProfile(ctx, ctx.Param("alias"))
}

func (api *attendanceApi) listAttendance(ctx echo.Context, alias string) error {
	var floor DateFloor
	if err := floor.Bind(ctx, api.conf.CourseStartDate, api.conf.Location); err != nil {
		return err
	}
	recs, err := api.svc.ListAttendance(ctx.Request().Context(), alias, floor.Date)
	if err != nil {
		return errors.Wrap(err, "listing attendance")
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *attendanceApi) composeProfile(ctx echo.Context, alias string) error {
	prof, err := api.svc.ComposeProfile(ctx.Request().Context(), alias)
	if err != nil {
		return errors.Wrap(err, "composing profile")
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *attendanceApi) activeClasses(ctx echo.Context) error {
	courses, err := api.svc.ActiveCourses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing active courses")
	}
	if courses == nil {
		courses = []attendance.CourseWindow{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *attendanceApi) classSummary(ctx echo.Context) error {
	summaries, err := api.svc.SummarizeClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "summarizing class")
	}
	if summaries == nil {
		summaries = []attendance.StudentSummary{}
	}
	return ctx.JSON(http.StatusOK, summaries)
}
