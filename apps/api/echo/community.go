package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core/community"
	"github.com/lifecraft/backend/core/user"
)

type communityApi struct {
	svc      community.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerCommunityAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc community.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := communityApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	cg := g.Group("/community/sessions", jwt)

	cg.GET("", api.queryUpcoming)
	cg.GET("/mine", api.mine)
	cg.GET("/:id", api.retrieve)
	cg.POST("/:id/register", api.register)
	cg.DELETE("/:id/register", api.cancel)

	// session management
	cg.POST("", api.create, staffMiddleware())
	cg.PUT("/:id", api.update, staffMiddleware())
	cg.DELETE("/:id", api.destroy, staffMiddleware())
}

// Handlers

func (api *communityApi) queryUpcoming(ctx echo.Context) error {
	sessions, err := api.svc.QueryUpcoming(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying upcoming sessions")
	}
	if sessions == nil {
		sessions = []community.SessionDetail{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *communityApi) mine(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	sessions, err := api.svc.UserSessions(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying user sessions")
	}
	if sessions == nil {
		sessions = []community.SessionDetail{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *communityApi) retrieve(ctx echo.Context) error {
	detail, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == community.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding session by ID")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *communityApi) register(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reg, err := api.svc.Register(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == community.ErrNotFound {
			return errHttpNotFound
		}
		return err
	}
	return ctx.JSON(http.StatusCreated, reg)
}

func (api *communityApi) cancel(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.Cancel(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		if errors.Cause(err) == community.ErrNotFound {
			return errHttpNotFound
		}
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *communityApi) create(ctx echo.Context) error {
	var data community.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *communityApi) update(ctx echo.Context) error {
	detail, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == community.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding session by ID")
	}

	var data community.UpdateSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSession")
	}
	if err := data.Validate(api.validate, detail.Session); err != nil {
		return err
	}

	sess, err := api.svc.Update(ctx.Request().Context(), detail.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *communityApi) destroy(ctx echo.Context) error {
	if _, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err != nil {
		if errors.Cause(err) == community.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding session by ID")
	}

	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}
