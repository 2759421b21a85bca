package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core/recommend"
	"github.com/lifecraft/backend/core/user"
)

type recommendApi struct {
	svc    recommend.Service
	usrSvc user.Service
}

func registerRecommendAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc recommend.Service, usrSvc user.Service) {
	api := recommendApi{svc: svc, usrSvc: usrSvc}

	rg := g.Group("/recommendations", jwt)
	rg.GET("", api.recommend)
}

// Handlers

func (api *recommendApi) recommend(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res, err := api.svc.Recommend(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "generating recommendations")
	}
	return ctx.JSON(http.StatusOK, res)
}
