package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core/badge"
	"github.com/lifecraft/backend/core/user"
)

type badgeApi struct {
	svc    badge.Service
	usrSvc user.Service
}

func registerBadgeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc badge.Service, usrSvc user.Service) {
	api := badgeApi{svc: svc, usrSvc: usrSvc}

	bg := g.Group("/badges", jwt)

	bg.GET("/catalog", api.catalog)
	bg.GET("", api.all)
	bg.GET("/new", api.new)
}

// Handlers

func (api *badgeApi) catalog(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, badge.Catalog())
}

func (api *badgeApi) all(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	earned, err := api.svc.AllBadges(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying earned badges")
	}
	if earned == nil {
		earned = []badge.EarnedBadge{}
	}
	return ctx.JSON(http.StatusOK, earned)
}

func (api *badgeApi) new(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	newly, err := api.svc.NewBadges(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying new badges")
	}
	return ctx.JSON(http.StatusOK, newly)
}
