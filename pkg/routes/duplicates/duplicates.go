package duplicates

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/joiedevivre/jasmine/pkg/export"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/routes"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

const (
	exportLimit = 10000

	HeaderExportLimit     = "X-Export-Limit"
	HeaderExportTruncated = "X-Export-Truncated"
)

type Scanner interface {
	Scan(ctx context.Context, actor models.Actor) (models.ScanSummary, error)
}

type Reviewer interface {
	List(ctx context.Context, actor models.Actor, filter models.GroupFilter) ([]models.DuplicateGroup, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.DuplicateGroup, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id string, status models.GroupStatus, notes string) (*models.DuplicateGroup, error)
}

// Handler serves the duplicate account review endpoints.
type Handler struct {
	scanner  Scanner
	reviewer Reviewer
	logger   ectologger.Logger
	render   func(w io.Writer, groups []models.DuplicateGroup) error
}

func NewHandler(scanner Scanner, reviewer Reviewer, logger ectologger.Logger) *Handler {
	return &Handler{
		scanner:  scanner,
		reviewer: reviewer,
		logger:   logger,
		render:   export.WriteGroups,
	}
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=reviewed merged dismissed"`
	Notes  string `json:"notes" validate:"max=2000"`
}

type ListResponse struct {
	Groups []models.DuplicateGroup `json:"groups"`
	Count  int                     `json:"count"`
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/scan", h.Scan)
	g.GET("", h.List)
	g.GET("/export", h.Export)
	g.GET("/:id", h.Get)
	g.POST("/:id/status", h.UpdateStatus)
}

func (h *Handler) Scan(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicates.Handler.Scan")
	defer span.End()

	summary, err := h.scanner.Scan(ctx, routes.Actor(c))
	if err != nil {
		return routes.Error(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicates.Handler.List")
	defer span.End()

	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	groups, err := h.reviewer.List(ctx, routes.Actor(c), filter)
	if err != nil {
		return routes.Error(err)
	}
	if groups == nil {
		groups = []models.DuplicateGroup{}
	}
	return c.JSON(http.StatusOK, ListResponse{Groups: groups, Count: len(groups)})
}

func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicates.Handler.Get")
	defer span.End()

	group, err := h.reviewer.Get(ctx, routes.Actor(c), c.Param("id"))
	if err != nil {
		return routes.Error(err)
	}
	return c.JSON(http.StatusOK, group)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicates.Handler.UpdateStatus")
	defer span.End()

	var req UpdateStatusRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	group, err := h.reviewer.UpdateStatus(ctx, routes.Actor(c), c.Param("id"), models.GroupStatus(req.Status), req.Notes)
	if err != nil {
		return routes.Error(err)
	}
	return c.JSON(http.StatusOK, group)
}

// Export renders the filtered groups into an xlsx workbook before sending it.
func (h *Handler) Export(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "duplicates.Handler.Export")
	defer span.End()

	filter, err := parseFilter(c)
	if err != nil {
		return err
	}
	// one extra row tells us whether the cap cut the export short
	filter.Limit = exportLimit + 1
	filter.Offset = 0

	groups, err := h.reviewer.List(ctx, routes.Actor(c), filter)
	if err != nil {
		return routes.Error(err)
	}
	truncated := len(groups) > exportLimit
	if truncated {
		groups = groups[:exportLimit]
	}

	var buf bytes.Buffer
	if err := h.render(&buf, groups); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to render duplicate group export")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to render export")
	}

	filename := fmt.Sprintf("duplicate-groups-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	header.Set(HeaderExportLimit, strconv.Itoa(exportLimit))
	header.Set(HeaderExportTruncated, strconv.FormatBool(truncated))
	if truncated {
		h.logger.WithContext(ctx).WithField("limit", exportLimit).Warn("Duplicate group export truncated")
	}
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func parseFilter(c echo.Context) (models.GroupFilter, error) {
	filter := models.GroupFilter{
		Status: models.GroupStatus(c.QueryParam("status")),
		Type:   models.GroupType(c.QueryParam("type")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown status %q", filter.Status)
	}
	if filter.Type != "" && filter.Type != models.GroupTypeClient && filter.Type != models.GroupTypeBusiness {
		return filter, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown type %q", filter.Type)
	}

	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 500 {
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		filter.Limit = limit
	}
	if v := c.QueryParam("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}
