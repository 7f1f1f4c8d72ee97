package cascade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joiedevivre/jasmine/pkg/cascade"
	"github.com/joiedevivre/jasmine/pkg/middleware"
	"github.com/joiedevivre/jasmine/pkg/models"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) LoadImpact(ctx context.Context, actor models.Actor, businessID string) (*cascade.Session, error) {
	args := m.Called(ctx, actor, businessID)
	s, _ := args.Get(0).(*cascade.Session)
	return s, args.Error(1)
}

func (m *mockService) Acknowledge(ctx context.Context, actor models.Actor, businessID, confirmationID string, consequences []string) (*cascade.Session, error) {
	args := m.Called(ctx, actor, businessID, confirmationID, consequences)
	s, _ := args.Get(0).(*cascade.Session)
	return s, args.Error(1)
}

func (m *mockService) ConfirmName(ctx context.Context, actor models.Actor, businessID, confirmationID, typedName string) (*cascade.Session, error) {
	args := m.Called(ctx, actor, businessID, confirmationID, typedName)
	s, _ := args.Get(0).(*cascade.Session)
	return s, args.Error(1)
}

func (m *mockService) Execute(ctx context.Context, actor models.Actor, businessID, confirmationID string, progress cascade.ProgressFunc) (models.CascadeResult, error) {
	args := m.Called(ctx, actor, businessID, confirmationID, progress)
	return args.Get(0).(models.CascadeResult), args.Error(1)
}

func newServer(t *testing.T, svc Service) *echo.Echo {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	authn, err := middleware.Authentication(context.Background(), logger, middleware.AuthConfig{})
	require.NoError(t, err)
	e.Use(middleware.Context(), authn)

	NewHandler(svc, logger).Register(e.Group("/api/v1/admin/businesses"))
	return e
}

func do(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.HeaderUserID, "admin-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

var admin = models.Actor{UserID: "admin-1"}

func TestHandler_LoadImpact(t *testing.T) {
	svc := &mockService{}
	plan := &models.CascadePlan{BusinessID: "biz-1", BusinessName: "Chez Fatou", ProductIDs: []string{"p1", "p2"}}
	svc.On("LoadImpact", mock.Anything, admin, "biz-1").Return(&cascade.Session{
		ID:           "conf-1",
		BusinessID:   "biz-1",
		Plan:         plan,
		ImpactLoaded: true,
		Acknowledged: map[string]bool{},
	}, nil)

	rec := do(newServer(t, svc), "/api/v1/admin/businesses/biz-1/cascade/impact", "")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"confirmation_id":"conf-1"`)
	assert.Contains(t, rec.Body.String(), `"pending_acknowledgements":["products","business_record"]`)
	assert.Contains(t, rec.Body.String(), `"ready":false`)
	svc.AssertExpectations(t)
}

func TestHandler_AcknowledgeRequiresConsequences(t *testing.T) {
	svc := &mockService{}

	rec := do(newServer(t, svc), "/api/v1/admin/businesses/biz-1/cascade/conf-1/acknowledge", `{"consequences":[]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Acknowledge", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_ConfirmNameMismatch(t *testing.T) {
	svc := &mockService{}
	svc.On("ConfirmName", mock.Anything, admin, "biz-1", "conf-1", "chez fatoo").
		Return(&cascade.Session{ID: "conf-1", Plan: &models.CascadePlan{}}, cascade.ErrNameMismatch)

	rec := do(newServer(t, svc), "/api/v1/admin/businesses/biz-1/cascade/conf-1/confirm", `{"typed_name":"chez fatoo"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_ExecuteStreamsProgress(t *testing.T) {
	svc := &mockService{}
	result := models.CascadeResult{BusinessID: "biz-1", LastStep: cascade.StepBusiness}
	svc.On("Execute", mock.Anything, admin, "biz-1", "conf-1", mock.Anything).
		Run(func(args mock.Arguments) {
			progress := args.Get(4).(cascade.ProgressFunc)
			progress(models.CascadeProgress{Percent: 15, ActionLabel: "Deleting product ratings"})
			progress(models.CascadeProgress{Percent: 100, ActionLabel: "Business deleted"})
		}).
		Return(result, nil)

	rec := do(newServer(t, svc), "/api/v1/admin/businesses/biz-1/cascade/conf-1/execute", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: progress\n"))
	assert.Contains(t, body, `data: {"percent":15,"action_label":"Deleting product ratings"}`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
	assert.Contains(t, body, "event: done\n")
}

func TestHandler_ExecuteStepFailureStreamsError(t *testing.T) {
	svc := &mockService{}
	svc.On("Execute", mock.Anything, admin, "biz-1", "conf-1", mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(4).(cascade.ProgressFunc)(models.CascadeProgress{Percent: 0, ActionLabel: "Business record could not be deleted"})
		}).
		Return(models.CascadeResult{}, cascade.ErrBusinessDeleteFailed)

	rec := do(newServer(t, svc), "/api/v1/admin/businesses/biz-1/cascade/conf-1/execute", "")

	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, "business record could not be deleted")
	assert.NotContains(t, body, "event: done")
}

func TestHandler_ExecuteBlockedByGate(t *testing.T) {
	svc := &mockService{}
	svc.On("Execute", mock.Anything, admin, "biz-1", "conf-1", mock.Anything).
		Return(models.CascadeResult{}, &cascade.GateError{Reason: cascade.ReasonNameNotConfirmed})

	rec := do(newServer(t, svc), "/api/v1/admin/businesses/biz-1/cascade/conf-1/execute", "")

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, echo.MIMEApplicationJSON, strings.Split(rec.Header().Get(echo.HeaderContentType), ";")[0])
}
