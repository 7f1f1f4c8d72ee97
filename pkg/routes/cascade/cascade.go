package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/joiedevivre/jasmine/pkg/cascade"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/routes"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

type Service interface {
	LoadImpact(ctx context.Context, actor models.Actor, businessID string) (*cascade.Session, error)
	Acknowledge(ctx context.Context, actor models.Actor, businessID, confirmationID string, consequences []string) (*cascade.Session, error)
	ConfirmName(ctx context.Context, actor models.Actor, businessID, confirmationID, typedName string) (*cascade.Session, error)
	Execute(ctx context.Context, actor models.Actor, businessID, confirmationID string, progress cascade.ProgressFunc) (models.CascadeResult, error)
}

// Handler serves the business cascade delete flow.
type Handler struct {
	service Service
	logger  ectologger.Logger
}

func NewHandler(service Service, logger ectologger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type AcknowledgeRequest struct {
	Consequences []string `json:"consequences" validate:"required,min=1,dive,required"`
}

type ConfirmRequest struct {
	TypedName string `json:"typed_name" validate:"required"`
}

// ConfirmationResponse is the gate state returned after each confirmation step.
type ConfirmationResponse struct {
	ConfirmationID string              `json:"confirmation_id"`
	Plan           *models.CascadePlan `json:"plan"`
	Counts         map[string]int      `json:"counts"`
	Consequences   []string            `json:"consequences"`
	Pending        []string            `json:"pending_acknowledgements"`
	NameConfirmed  bool                `json:"name_confirmed"`
	Ready          bool                `json:"ready"`
}

func newConfirmationResponse(s *cascade.Session) ConfirmationResponse {
	pending := s.Pending()
	if pending == nil {
		pending = []string{}
	}
	return ConfirmationResponse{
		ConfirmationID: s.ID,
		Plan:           s.Plan,
		Counts:         s.Plan.Counts(),
		Consequences:   s.Plan.Consequences(),
		Pending:        pending,
		NameConfirmed:  s.NameConfirmed,
		Ready:          s.Check() == nil,
	}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/:id/cascade/impact", h.LoadImpact)
	g.POST("/:id/cascade/:confirmation_id/acknowledge", h.Acknowledge)
	g.POST("/:id/cascade/:confirmation_id/confirm", h.ConfirmName)
	g.POST("/:id/cascade/:confirmation_id/execute", h.Execute)
}

func (h *Handler) LoadImpact(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cascade.Handler.LoadImpact")
	defer span.End()

	session, err := h.service.LoadImpact(ctx, routes.Actor(c), c.Param("id"))
	if err != nil {
		return routes.Error(err)
	}
	return c.JSON(http.StatusCreated, newConfirmationResponse(session))
}

func (h *Handler) Acknowledge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cascade.Handler.Acknowledge")
	defer span.End()

	var req AcknowledgeRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	session, err := h.service.Acknowledge(ctx, routes.Actor(c), c.Param("id"), c.Param("confirmation_id"), req.Consequences)
	if err != nil {
		return routes.Error(err)
	}
	return c.JSON(http.StatusOK, newConfirmationResponse(session))
}

func (h *Handler) ConfirmName(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cascade.Handler.ConfirmName")
	defer span.End()

	var req ConfirmRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	session, err := h.service.ConfirmName(ctx, routes.Actor(c), c.Param("id"), c.Param("confirmation_id"), req.TypedName)
	if err != nil {
		return routes.Error(err)
	}
	return c.JSON(http.StatusOK, newConfirmationResponse(session))
}

// Execute runs the cascade and streams progress as server-sent events. Errors
// raised before the first step are returned as a regular error response.
func (h *Handler) Execute(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cascade.Handler.Execute")
	defer span.End()

	stream := &eventStream{c: c}
	result, err := h.service.Execute(ctx, routes.Actor(c), c.Param("id"), c.Param("confirmation_id"), func(p models.CascadeProgress) {
		if err := stream.send("progress", p); err != nil {
			h.logger.WithContext(ctx).WithError(err).Debug("Failed to write cascade progress")
		}
	})

	if !stream.started {
		if err != nil {
			return routes.Error(err)
		}
		return c.JSON(http.StatusOK, result)
	}

	if err != nil {
		message := err.Error()
		if he := routes.Error(err); httperror.IsHTTPError(he) {
			message = he.Error()
		}
		return stream.send("error", map[string]string{"message": message})
	}
	return stream.send("done", result)
}

type eventStream struct {
	c       echo.Context
	started bool
}

func (s *eventStream) send(event string, payload any) error {
	if !s.started {
		header := s.c.Response().Header()
		header.Set(echo.HeaderContentType, "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		s.c.Response().WriteHeader(http.StatusOK)
		s.started = true
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.c.Response(), "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.c.Response().Flush()
	return nil
}
