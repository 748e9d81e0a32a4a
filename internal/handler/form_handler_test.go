package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpnet-io/fpnet-api/internal/models"
	"github.com/fpnet-io/fpnet-api/internal/service"
	appErrors "github.com/fpnet-io/fpnet-api/pkg/errors"
)

type formServiceMock struct {
	forms      []models.Form
	pagination *models.Pagination
	form       *models.Form
	err        error

	lastFilter    models.FormFilter
	createCalled  bool
	publishCalled bool
	deleteCalled  bool
	lastCreate    service.CreateFormRequest
}

func (m *formServiceMock) List(ctx context.Context, filter models.FormFilter) ([]models.Form, *models.Pagination, error) {
	m.lastFilter = filter
	return m.forms, m.pagination, m.err
}

func (m *formServiceMock) Get(ctx context.Context, id string) (*models.Form, error) {
	return m.form, m.err
}

func (m *formServiceMock) Create(ctx context.Context, req service.CreateFormRequest, actor *models.JWTClaims) (*models.Form, error) {
	m.createCalled = true
	m.lastCreate = req
	return m.form, m.err
}

func (m *formServiceMock) Update(ctx context.Context, id string, req service.UpdateFormRequest) (*models.Form, error) {
	return m.form, m.err
}

func (m *formServiceMock) Publish(ctx context.Context, id string, actor *models.JWTClaims) (*models.Form, error) {
	m.publishCalled = true
	return m.form, m.err
}

func (m *formServiceMock) Pause(ctx context.Context, id string) (*models.Form, error) {
	return m.form, m.err
}

func (m *formServiceMock) Resume(ctx context.Context, id string) (*models.Form, error) {
	return m.form, m.err
}

func (m *formServiceMock) Close(ctx context.Context, id string, actor *models.JWTClaims) (*models.Form, error) {
	return m.form, m.err
}

func (m *formServiceMock) Duplicate(ctx context.Context, id string, actor *models.JWTClaims) (*models.Form, error) {
	return m.form, m.err
}

func (m *formServiceMock) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	m.deleteCalled = true
	return m.err
}

func TestFormHandlerListParsesFilters(t *testing.T) {
	mockSvc := &formServiceMock{
		forms:      []models.Form{{ID: "f1", Title: "Survey"}},
		pagination: &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11},
	}
	handler := NewFormHandler(mockSvc)

	c, w := responderContext(t, http.MethodGet, "/forms?page=2&page_size=10&status=PUBLISHED&search=sur", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	assert.Equal(t, 10, mockSvc.lastFilter.PageSize)
	assert.Equal(t, models.FormStatusPublished, mockSvc.lastFilter.Status)
	assert.Equal(t, "sur", mockSvc.lastFilter.Search)

	var envelope struct {
		Data       []models.Form      `json:"data"`
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 1)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 11, envelope.Pagination.TotalCount)
}

func TestFormHandlerCreate(t *testing.T) {
	mockSvc := &formServiceMock{form: &models.Form{ID: "f1", Title: "Survey"}}
	handler := NewFormHandler(mockSvc)

	payload := []byte(`{"title":"Survey","fields":[{"kind":"SHORT_TEXT","label":"Name"}]}`)
	c, w := responderContext(t, http.MethodPost, "/forms", payload)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.createCalled)
	assert.Equal(t, "Survey", mockSvc.lastCreate.Title)
	require.Len(t, mockSvc.lastCreate.Fields, 1)
	assert.Equal(t, models.FieldKindShortText, mockSvc.lastCreate.Fields[0].Kind)
}

func TestFormHandlerCreateInvalidBody(t *testing.T) {
	handler := NewFormHandler(&formServiceMock{})

	c, w := responderContext(t, http.MethodPost, "/forms", []byte(`{"title":`))

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFormHandlerCreateStructuralError(t *testing.T) {
	mockSvc := &formServiceMock{err: appErrors.Clone(appErrors.ErrStructural, "rule target missing")}
	handler := NewFormHandler(mockSvc)

	payload := []byte(`{"title":"Survey"}`)
	c, w := responderContext(t, http.MethodPost, "/forms", payload)

	handler.Create(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrStructural.Code, envelope.Error.Code)
}

func TestFormHandlerPublish(t *testing.T) {
	mockSvc := &formServiceMock{form: &models.Form{ID: "f1", Status: models.FormStatusPublished}}
	handler := NewFormHandler(mockSvc)

	c, w := responderContext(t, http.MethodPost, "/forms/f1/publish", nil)
	c.Params = gin.Params{{Key: "id", Value: "f1"}}

	handler.Publish(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.publishCalled)
}

func TestFormHandlerPublishPreconditionFailure(t *testing.T) {
	mockSvc := &formServiceMock{err: appErrors.Clone(appErrors.ErrPreconditionFailed, "a form needs at least one field before publishing")}
	handler := NewFormHandler(mockSvc)

	c, w := responderContext(t, http.MethodPost, "/forms/f1/publish", nil)
	c.Params = gin.Params{{Key: "id", Value: "f1"}}

	handler.Publish(c)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestFormHandlerDelete(t *testing.T) {
	mockSvc := &formServiceMock{}
	handler := NewFormHandler(mockSvc)

	c, w := responderContext(t, http.MethodDelete, "/forms/f1", nil)
	c.Params = gin.Params{{Key: "id", Value: "f1"}}

	handler.Delete(c)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, mockSvc.deleteCalled)
}
