package middleware

import (
	gocontext "context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/joiedevivre/jasmine/pkg/context"
	"github.com/joiedevivre/jasmine/pkg/tracing"
	"github.com/labstack/echo/v4"
)

type UserClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

type AuthConfig struct {
	Enabled  bool
	Issuer   string
	ClientID string
}

// Authentication resolves the caller id. With OIDC enabled a verified bearer
// token is required; otherwise the X-User-ID header is trusted, which is only
// meant for deployments behind an authenticating gateway.
func Authentication(ctx gocontext.Context, logger ectologger.Logger, cfg AuthConfig) (echo.MiddlewareFunc, error) {
	if !cfg.Enabled {
		return headerAuthentication(), nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider %s: %w", cfg.Issuer, err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracing.StartSpan(c.Request().Context(), "middleware.Authentication")
			defer span.End()

			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				logger.WithContext(ctx).Warn("request is missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer")
			}

			verifyCtx, cancel := gocontext.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			idToken, err := verifier.Verify(verifyCtx, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("token is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			var claims UserClaims
			if err := idToken.Claims(&claims); err != nil {
				logger.WithContext(ctx).WithError(err).Warn("failed to parse claims")
				return echo.NewHTTPError(http.StatusUnauthorized, "cannot parse claims")
			}

			ctx = context.SetUserID(ctx, claims.Sub)
			ctx = context.SetEmail(ctx, claims.Email)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}, nil
}

func headerAuthentication() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
			if userID != "" {
				ctx := context.SetUserID(c.Request().Context(), userID)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}
