package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/user"
)

type learningApi struct {
	svc      learning.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerLearningAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc learning.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := learningApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	lg := g.Group("/learning", jwt)

	lg.GET("/items", api.query)
	lg.GET("/items/available", api.available)
	lg.GET("/items/:id", api.retrieve)
	lg.POST("/items/:id/complete", api.complete)
	lg.GET("/completions", api.completions)
	lg.GET("/stats", api.stats)

	// content management
	lg.POST("/items", api.create, staffMiddleware())
	lg.PUT("/items/:id", api.update, staffMiddleware())
	lg.DELETE("/items", api.destroyMultiple, staffMiddleware())
	lg.DELETE("/items/:id", api.destroy, staffMiddleware())
}

// Handlers

func (api *learningApi) query(ctx echo.Context) error {
	filter := new(learning.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []learning.Item{})
	}
	filter.Clean()

	// only staff see locked items
	if claims, err := getContextClaims(ctx); err == nil {
		filter.IncludeLocked = claims.IsAdmin || claims.IsInstructor
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	items, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying learning items")
	}
	if items == nil {
		items = []learning.Item{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *learningApi) available(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	items, err := api.svc.Available(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying available items")
	}
	if items == nil {
		items = []learning.Item{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *learningApi) retrieve(ctx echo.Context) error {
	item, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == learning.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding item by ID")
	}

	if item.Locked {
		claims, err := getContextClaims(ctx)
		if err != nil || !(claims.IsAdmin || claims.IsInstructor) {
			return errHttpNotFound
		}
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *learningApi) complete(ctx echo.Context) error {
	var data learning.CompleteItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cmp, err := api.svc.Complete(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		if errors.Cause(err) == learning.ErrNotFound {
			return errHttpNotFound
		}
		return err
	}
	return ctx.JSON(http.StatusOK, cmp)
}

func (api *learningApi) completions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	completed, err := api.svc.UserCompletions(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying user completions")
	}
	if completed == nil {
		completed = []learning.CompletedItem{}
	}
	return ctx.JSON(http.StatusOK, completed)
}

func (api *learningApi) stats(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	stats, err := api.svc.Stats(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "computing achievement stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *learningApi) create(ctx echo.Context) error {
	var data learning.NewItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	item, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating item")
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *learningApi) update(ctx echo.Context) error {
	item, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == learning.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding item by ID")
	}

	var data learning.UpdateItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateItem")
	}
	if err := data.Validate(api.validate, item); err != nil {
		return err
	}

	item, err = api.svc.Update(ctx.Request().Context(), item.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating item")
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *learningApi) destroy(ctx echo.Context) error {
	if _, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err != nil {
		if errors.Cause(err) == learning.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding item by ID")
	}

	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *learningApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting items")
	}
	return ctx.NoContent(http.StatusNoContent)
}
