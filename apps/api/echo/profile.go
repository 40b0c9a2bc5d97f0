package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/profile"
)

type profileApi struct {
	svc *profile.Service
}

func registerProfileAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *profile.Service) {
	api := profileApi{svc: svc}

	pg := g.Group("/profiles", jwt, callerMiddleware())
	pg.GET("/me", api.retrieveOwn)

	// moderation endpoints
	mg := pg.Group("", moderatorMiddleware())
	mg.GET("/pending", api.pending)
	mg.POST("/approve-all", api.approveAll)
	mg.GET("/:id", api.retrieve)
	mg.GET("/:id/actions", api.actions)
	mg.POST("/:id/approve", api.approve)
	mg.POST("/:id/reject", api.reject)
}

// Handlers

func (api *profileApi) retrieveOwn(ctx echo.Context) error {
	caller, err := getContextCaller(ctx)
	if err != nil {
		return err
	}
	prof, err := api.svc.GetByIdentityID(ctx.Request().Context(), caller.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *profileApi) pending(ctx echo.Context) error {
	caller, err := getContextCaller(ctx)
	if err != nil {
		return err
	}
	profiles, err := api.svc.Pending(ctx.Request().Context(), caller)
	if err != nil {
		return errors.Wrap(err, "querying pending profiles")
	}
	if profiles == nil {
		profiles = []profile.Profile{}
	}
	return ctx.JSON(http.StatusOK, profiles)
}

func (api *profileApi) retrieve(ctx echo.Context) error {
	prof, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *profileApi) actions(ctx echo.Context) error {
	acts, err := api.svc.Actions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying approval actions")
	}
	if acts == nil {
		acts = []profile.ApprovalAction{}
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (api *profileApi) approve(ctx echo.Context) error {
	caller, err := getContextCaller(ctx)
	if err != nil {
		return err
	}
	prof, err := api.svc.Approve(ctx.Request().Context(), caller, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prof)
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func (api *profileApi) reject(ctx echo.Context) error {
	caller, err := getContextCaller(ctx)
	if err != nil {
		return err
	}
	var data RejectRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectRequest")
	}
	prof, err := api.svc.Reject(ctx.Request().Context(), caller, ctx.Param("id"), data.Reason)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *profileApi) approveAll(ctx echo.Context) error {
	caller, err := getContextCaller(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.ApproveAll(ctx.Request().Context(), caller)
	if err != nil {
		return errors.Wrap(err, "bulk approving profiles")
	}
	return ctx.JSON(http.StatusOK, res)
}
