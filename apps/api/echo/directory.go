package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type directoryApi struct {
	dir Directory
}

func registerDirectoryAPI(g *echo.Group, jwt echo.MiddlewareFunc, dir Directory) {
	api := directoryApi{dir: dir}

	dg := g.Group("/directory", jwt, staffMiddleware())
	dg.GET("/status", api.status)
	dg.POST("/refresh", api.refresh)
}

func (api *directoryApi) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.dir.Status())
}

func (api *directoryApi) refresh(ctx echo.Context) error {
	if err := api.dir.Refresh(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "refreshing directory")
	}
	return ctx.JSON(http.StatusOK, api.dir.Status())
}
