// Package routes holds what the admin route packages share: the caller's
// identity and the translation of domain errors into HTTP errors.
package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/joiedevivre/jasmine/pkg/auth"
	"github.com/joiedevivre/jasmine/pkg/cascade"
	"github.com/joiedevivre/jasmine/pkg/context"
	"github.com/joiedevivre/jasmine/pkg/duplicates"
	"github.com/joiedevivre/jasmine/pkg/locking"
	"github.com/joiedevivre/jasmine/pkg/models"
)

const Prefix = "/api/v1/admin"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Actor reads the authenticated caller set by the authentication middleware.
func Actor(c echo.Context) models.Actor {
	ctx := c.Request().Context()
	return models.Actor{
		UserID: context.GetUserID(ctx),
		Email:  context.GetEmail(ctx),
	}
}

// Bind decodes and validates a request body.
func Bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid request: %s", strings.Join(fields, ", "))
		}
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	return nil
}

type mapping struct {
	target  error
	status  int
	message string
}

// domainErrors is checked in order; the first match wins. An empty message
// keeps the sentinel's own text.
var domainErrors = []mapping{
	{target: auth.ErrUnauthenticated, status: http.StatusUnauthorized},
	{target: auth.ErrForbidden, status: http.StatusForbidden},
	{target: locking.ErrLocked, status: http.StatusConflict},
	{target: duplicates.ErrInvalidStatus, status: http.StatusBadRequest},
	{target: duplicates.ErrInvalidTransition, status: http.StatusConflict},
	{target: cascade.ErrSessionNotFound, status: http.StatusNotFound},
	{target: cascade.ErrUnknownConsequence, status: http.StatusBadRequest},
	{target: cascade.ErrNameMismatch, status: http.StatusUnprocessableEntity},
	{target: cascade.ErrPlanChanged, status: http.StatusConflict},
	{target: cascade.ErrBusinessDeleteFailed, status: http.StatusInternalServerError, message: "business record could not be deleted"},
	{target: cascade.ErrCascadeFailed, status: http.StatusInternalServerError, message: "cascade failed"},
}

// Error translates err into the HTTP error the caller sees. Low-level causes
// never leak: an error no mapping knows becomes a plain 500.
func Error(err error) error {
	if err == nil {
		return nil
	}

	var gateErr *cascade.GateError
	if errors.As(err, &gateErr) {
		return httperror.NewHTTPError(http.StatusPreconditionFailed, gateErr.Error())
	}

	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			message := m.message
			if message == "" {
				message = m.target.Error()
			}
			return httperror.NewHTTPError(m.status, message)
		}
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if httperror.IsHTTPError(e) {
			return e
		}
	}

	return httperror.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
