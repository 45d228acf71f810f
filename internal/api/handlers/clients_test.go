package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revenda/internal/core"
	"revenda/internal/types"
)

type mockClientRepo struct {
	getByIDFn func(ctx context.Context, orgID, clientID string) (*types.Client, error)
	listFn    func(ctx context.Context, orgID string, page types.PageInfo) ([]types.Client, int, error)
	createFn  func(ctx context.Context, c *types.Client) error
	updateFn  func(ctx context.Context, c *types.Client) error
	deleteFn  func(ctx context.Context, orgID, clientID string) error

	created *types.Client
	updated *types.Client
}

func (m *mockClientRepo) GetByID(ctx context.Context, orgID, clientID string) (*types.Client, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, orgID, clientID)
	}
	return &types.Client{ID: clientID, OrganizationID: orgID, Name: "Maria Silva", Status: types.ClientActive}, nil
}

func (m *mockClientRepo) List(ctx context.Context, orgID string, page types.PageInfo) ([]types.Client, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, orgID, page)
	}
	return nil, 0, nil
}

func (m *mockClientRepo) Create(ctx context.Context, c *types.Client) error {
	m.created = c
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	return nil
}

func (m *mockClientRepo) Update(ctx context.Context, c *types.Client) error {
	m.updated = c
	if m.updateFn != nil {
		return m.updateFn(ctx, c)
	}
	return nil
}

func (m *mockClientRepo) Delete(ctx context.Context, orgID, clientID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, orgID, clientID)
	}
	return nil
}

type mockOrgGetter struct {
	org *types.Organization
	err error
}

func (m *mockOrgGetter) GetByID(ctx context.Context, orgID string) (*types.Organization, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.org != nil {
		return m.org, nil
	}
	return &types.Organization{
		ID:                 orgID,
		Name:               "Test Org",
		Plan:               types.PlanPro,
		SubscriptionStatus: types.SubStatusActive,
	}, nil
}

type mockClientGate struct {
	err    error
	called bool
}

func (m *mockClientGate) CheckClientCreate(ctx context.Context, org *types.Organization) error {
	m.called = true
	return m.err
}

func newTestClientHandler() (*ClientHandler, *mockClientRepo, *mockClientGate) {
	repo := &mockClientRepo{}
	gate := &mockClientGate{}
	h := NewClientHandler(repo, &mockOrgGetter{}, gate, core.NewValidator(), nil)
	return h, repo, gate
}

func TestClientHandler_List(t *testing.T) {
	h, repo, _ := newTestClientHandler()

	repo.listFn = func(_ context.Context, orgID string, page types.PageInfo) ([]types.Client, int, error) {
		assert.Equal(t, testOrgID, orgID)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 25, page.PerPage)
		return []types.Client{
			{ID: "cli_1", Name: "Maria Silva"},
			{ID: "cli_2", Name: "João Souza"},
		}, 57, nil
	}

	w := serve(t, h, httptest.NewRequest(http.MethodGet, "/clients?page=2&per_page=25", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var page types.Paginated[types.Client]
	decodeData(t, w, &page)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 25, page.PerPage)
	assert.Equal(t, 57, page.TotalItems)
}

func TestClientHandler_List_EmptyIsAnArray(t *testing.T) {
	h, _, _ := newTestClientHandler()

	w := serve(t, h, httptest.NewRequest(http.MethodGet, "/clients", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

func TestClientHandler_Get_NotFound(t *testing.T) {
	h, repo, _ := newTestClientHandler()
	repo.getByIDFn = func(_ context.Context, _, _ string) (*types.Client, error) {
		return nil, types.NewAppError(types.ErrCodeNotFoundClient, "client not found", nil)
	}

	w := serve(t, h, httptest.NewRequest(http.MethodGet, "/clients/cli_missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundClient), errorCode(t, w))
}

func TestClientHandler_Create(t *testing.T) {
	h, repo, gate := newTestClientHandler()

	planID := "plan_premium"
	w := serve(t, h, jsonRequest(t, http.MethodPost, "/clients", CreateClientRequest{
		Name:      "Maria Silva",
		Phone:     "+5511999998888",
		Status:    "active",
		ExpiresAt: strPtr("2026-09-15"),
		PlanID:    &planID,
	}))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, gate.called)

	require.NotNil(t, repo.created)
	assert.Equal(t, testOrgID, repo.created.OrganizationID)
	assert.NotEmpty(t, repo.created.ID)
	assert.Equal(t, types.ClientActive, repo.created.Status)
	require.NotNil(t, repo.created.ExpiresAt)
	assert.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), *repo.created.ExpiresAt)
	require.NotNil(t, repo.created.PlanID)
	assert.Equal(t, "plan_premium", *repo.created.PlanID)
}

func TestClientHandler_Create_InvalidPhone(t *testing.T) {
	h, repo, _ := newTestClientHandler()

	w := serve(t, h, jsonRequest(t, http.MethodPost, "/clients", CreateClientRequest{
		Name:   "Maria Silva",
		Phone:  "11 99999-8888",
		Status: "active",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, repo.created)
}

func TestClientHandler_Create_InvalidDate(t *testing.T) {
	h, _, _ := newTestClientHandler()

	w := serve(t, h, jsonRequest(t, http.MethodPost, "/clients", CreateClientRequest{
		Name:      "Maria Silva",
		Status:    "active",
		ExpiresAt: strPtr("15/09/2026"),
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClientHandler_Create_PlanLimitReached(t *testing.T) {
	h, repo, gate := newTestClientHandler()
	gate.err = types.NewAppErrorWithDetails(
		types.ErrCodeLimitClients, "client limit reached", nil,
		map[string]any{"limit": 50, "current": 50},
	)

	w := serve(t, h, jsonRequest(t, http.MethodPost, "/clients", CreateClientRequest{
		Name:   "Maria Silva",
		Status: "active",
	}))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(types.ErrCodeLimitClients), errorCode(t, w))
	assert.Nil(t, repo.created)
}

func TestClientHandler_Update_PartialFields(t *testing.T) {
	h, repo, _ := newTestClientHandler()

	planID := "plan_old"
	serverID := "srv_1"
	repo.getByIDFn = func(_ context.Context, orgID, clientID string) (*types.Client, error) {
		return &types.Client{
			ID:             clientID,
			OrganizationID: orgID,
			Name:           "Maria Silva",
			Phone:          "+5511999998888",
			Status:         types.ClientActive,
			PlanID:         &planID,
			ServerID:       &serverID,
		}, nil
	}

	w := serve(t, h, jsonRequest(t, http.MethodPatch, "/clients/cli_1", UpdateClientRequest{
		Status: strPtr("inactive"),
		PlanID: strPtr(""),
	}))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, repo.updated)
	assert.Equal(t, "Maria Silva", repo.updated.Name)
	assert.Equal(t, "+5511999998888", repo.updated.Phone)
	assert.Equal(t, types.ClientInactive, repo.updated.Status)
	assert.Nil(t, repo.updated.PlanID)
	require.NotNil(t, repo.updated.ServerID)
	assert.Equal(t, "srv_1", *repo.updated.ServerID)
}

func TestClientHandler_Delete(t *testing.T) {
	h, repo, _ := newTestClientHandler()

	var deletedID string
	repo.deleteFn = func(_ context.Context, orgID, clientID string) error {
		assert.Equal(t, testOrgID, orgID)
		deletedID = clientID
		return nil
	}

	w := serve(t, h, httptest.NewRequest(http.MethodDelete, "/clients/cli_1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "cli_1", deletedID)
}

func strPtr(s string) *string { return &s }
