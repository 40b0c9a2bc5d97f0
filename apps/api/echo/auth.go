package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/profile"
)

const callerContextKey = "caller"

// Claims represents the authorization claims transmitted via a JWT. The
// role is resolved server-side from the approved profile, never taken from
// the client.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    conf.SecretKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "userToken",
		Claims:        new(Claims),
	}
}

func getClaims(conf *core.Config, p profile.Profile) *Claims {
	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   p.IdentityID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: p.Email,
		Name:  p.Name,
	}
	// only an admitted registrant carries an authorization role
	if p.IsApproved() {
		claims.Role = p.Role
	}
	return claims
}

// GenerateToken signs and returns a token for the given claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(conf.SecretKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return signed, nil
}

// callerMiddleware resolves the verified JWT claims into the profile.Caller
// evaluated by the access policy layer.
func callerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token, ok := ctx.Get("userToken").(*jwt.Token)
			if !ok {
				return errHttpUnauthorized
			}
			claims, ok := token.Claims.(*Claims)
			if !ok {
				return errHttpUnauthorized
			}
			caller := profile.Caller{ID: claims.Subject, Role: claims.Role}
			ctx.Set(callerContextKey, caller)
			ctx.SetRequest(ctx.Request().WithContext(
				profile.WithCaller(ctx.Request().Context(), caller)))
			return next(ctx)
		}
	}
}

func getContextCaller(ctx echo.Context) (profile.Caller, error) {
	caller, ok := ctx.Get(callerContextKey).(profile.Caller)
	if !ok {
		return profile.Caller{}, errHttpUnauthorized
	}
	return caller, nil
}

// moderatorMiddleware restricts a group to approvers. Fine-grained checks
// (a teacher may only moderate student profiles) remain with the service
// and the policy layer.
func moderatorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			caller, err := getContextCaller(ctx)
			if err != nil {
				return err
			}
			if !(caller.IsAdmin() || caller.IsTeacher()) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
