package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/timetable"
)

type timetableApi struct {
	svc  *timetable.Service
	auth *authenticator
}

func registerTimetableAPI(g *echo.Group, api *timetableApi) {
	tg := g.Group("/timetable", api.auth.middleware())
	tg.GET("", api.query)
	tg.POST("", api.create, adminMiddleware())
	tg.GET("/availability", api.availability)
	tg.POST("/bookings", api.book)
	tg.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *timetableApi) query(ctx echo.Context) error {
	var filter timetable.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []timetable.Entry{})
	}
	entries, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying timetable")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *timetableApi) create(ctx echo.Context) error {
	var data timetable.NewEntry
	if err := ctx.Bind(&data); err != nil {
		return errInvalidRequest
	}
	entry, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating entry")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *timetableApi) availability(ctx echo.Context) error {
	avail, err := api.svc.Availability(ctx.Request().Context(), ctx.QueryParam("classroom"), ctx.QueryParam("date"))
	if err != nil {
		return errors.Wrap(err, "checking availability")
	}
	return ctx.JSON(http.StatusOK, avail)
}

func (api *timetableApi) book(ctx echo.Context) error {
	var data timetable.NewBooking
	if err := ctx.Bind(&data); err != nil {
		return errInvalidRequest
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	entry, err := api.svc.Book(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "booking classroom")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *timetableApi) destroy(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	entry, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if err := api.svc.Delete(reqCtx, entry.ID); err != nil {
		return errors.Wrap(err, "deleting entry")
	}
	return ctx.NoContent(http.StatusNoContent)
}
