package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
	"github.com/trezcool/shule/core/profile"
	"github.com/trezcool/shule/core/registration"
)

type registrationApi struct {
	svc      *registration.Service
	profiles *profile.Service
	provider identity.Provider
	conf     *core.Config
}

func registerRegistrationAPI(
	g *echo.Group,
	svc *registration.Service,
	profiles *profile.Service,
	provider identity.Provider,
	conf *core.Config,
) {
	api := registrationApi{
		svc:      svc,
		profiles: profiles,
		provider: provider,
		conf:     conf,
	}

	// un-authed endpoints
	g.POST("/register", api.register)
	g.GET("/register/confirm", api.confirm)
	g.POST("/login", api.login)
}

// Handlers

func (api *registrationApi) register(ctx echo.Context) error {
	var data registration.NewRegistration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRegistration")
	}

	res, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

// confirm is the confirmation callback target the provider redirects to
// once the registrant clicks the email link. Duplicate callbacks are safe.
func (api *registrationApi) confirm(ctx echo.Context) error {
	token := core.CleanString(ctx.QueryParam("token"))
	if token == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "token", Error: "this field is required"})
	}

	res, err := api.svc.ConfirmEmail(ctx.Request().Context(), token)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

type (
	LoginRequest struct {
		AccessToken string `json:"access_token"`
	}

	LoginResponse struct {
		Token   string          `json:"token"`
		Profile profile.Profile `json:"profile"`
	}
)

// login exchanges a provider-issued access token for an app session token.
// The role claim is resolved from the approved profile on the server side;
// a client-cached role is never trusted.
func (api *registrationApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if data.AccessToken == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "access_token", Error: "this field is required"})
	}

	reqCtx := ctx.Request().Context()
	ident, err := api.provider.GetUser(reqCtx, data.AccessToken)
	if err != nil {
		if errors.Cause(err) == identity.ErrNotFound {
			return errHttpUnauthorized
		}
		return errors.Wrap(err, "verifying access token")
	}

	prof, err := api.profiles.GetByIdentityID(profile.WithCaller(reqCtx, profile.SystemCaller), ident.ID)
	if err != nil {
		return errors.Wrap(err, "resolving profile")
	}

	token, err := GenerateToken(api.conf, getClaims(api.conf, prof))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Profile: prof})
}
