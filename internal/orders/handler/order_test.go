package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"opsline/pkg/auth"
	apperrors "opsline/pkg/errors"
	"opsline/pkg/logger"
	"opsline/pkg/middleware"
	"opsline/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockOrderService struct {
	createFunc      func(ctx context.Context, identity auth.Identity, order *model.Order) error
	getByIDFunc     func(ctx context.Context, id string) (*model.Order, error)
	openForEditFunc func(ctx context.Context, token, id, sessionID string) (*model.Order, *model.Lock, error)
	closeEditFunc   func(ctx context.Context, token, id, sessionID string) error
	updateFunc      func(ctx context.Context, identity auth.Identity, token, id, sessionID string, updates *model.OrderUpdate) error
	deleteFunc      func(ctx context.Context, identity auth.Identity, token, id, sessionID string) error
}

func (m *mockOrderService) Create(ctx context.Context, identity auth.Identity, order *model.Order) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, identity, order)
	}
	return nil
}

func (m *mockOrderService) GetByID(ctx context.Context, id string) (*model.Order, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &model.Order{ID: id}, nil
}

func (m *mockOrderService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Order, int64, error) {
	return []*model.Order{}, 0, nil
}

func (m *mockOrderService) OpenForEdit(ctx context.Context, token, id, sessionID string) (*model.Order, *model.Lock, error) {
	if m.openForEditFunc != nil {
		return m.openForEditFunc(ctx, token, id, sessionID)
	}
	return &model.Order{ID: id}, &model.Lock{ResourceID: id}, nil
}

func (m *mockOrderService) CloseEdit(ctx context.Context, token, id, sessionID string) error {
	if m.closeEditFunc != nil {
		return m.closeEditFunc(ctx, token, id, sessionID)
	}
	return nil
}

func (m *mockOrderService) Update(ctx context.Context, identity auth.Identity, token, id, sessionID string, updates *model.OrderUpdate) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, identity, token, id, sessionID, updates)
	}
	return nil
}

func (m *mockOrderService) Delete(ctx context.Context, identity auth.Identity, token, id, sessionID string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, identity, token, id, sessionID)
	}
	return nil
}

func newTestRouter(svc *mockOrderService) *httprouter.Router {
	log := logger.New(logger.Config{Level: "error", Format: logger.JSON, Service: "test"})
	router := httprouter.New()
	NewOrderHandler(svc, log).RegisterRoutes(router)
	return router
}

func withIdentity(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.IdentityKey, auth.Identity{
		UserID:      "u-1",
		DisplayName: "Dana",
	})
	return r.WithContext(ctx)
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("encode request body: %v", err)
	}
	return buf
}

func TestCreateOrder(t *testing.T) {
	var created *model.Order
	svc := &mockOrderService{
		createFunc: func(ctx context.Context, identity auth.Identity, order *model.Order) error {
			order.ID = "ord-1"
			created = order
			return nil
		},
	}
	router := newTestRouter(svc)

	body := jsonBody(t, model.Order{
		OrderNumber: "ORD-1001",
		Kind:        model.ResourceTypeInternalOrder,
		Items:       []model.OrderItem{{SKU: "SKU-1", Name: "Widget", Quantity: 2}},
	})
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/orders", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if created == nil || created.OrderNumber != "ORD-1001" {
		t.Fatalf("service did not receive the decoded order: %+v", created)
	}
}

func TestCreateOrderRequiresIdentity(t *testing.T) {
	router := newTestRouter(&mockOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", jsonBody(t, model.Order{}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestOpenEditReturnsOrderAndLock(t *testing.T) {
	svc := &mockOrderService{
		openForEditFunc: func(ctx context.Context, token, id, sessionID string) (*model.Order, *model.Lock, error) {
			if sessionID != "sess-1" {
				t.Errorf("sessionID = %q, want sess-1", sessionID)
			}
			return &model.Order{ID: id}, &model.Lock{ResourceID: id, OwnerSessionID: sessionID}, nil
		},
	}
	router := newTestRouter(svc)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/orders/id/ord-1/edit",
		jsonBody(t, editRequest{SessionID: "sess-1"})))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Order model.Order `json:"order"`
			Lock  model.Lock  `json:"lock"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Order.ID != "ord-1" || resp.Data.Lock.ResourceID != "ord-1" {
		t.Fatalf("unexpected payload: %+v", resp.Data)
	}
}

func TestOpenEditConflictCarriesHolder(t *testing.T) {
	svc := &mockOrderService{
		openForEditFunc: func(ctx context.Context, token, id, sessionID string) (*model.Order, *model.Lock, error) {
			return nil, nil, apperrors.LockConflict("u-2", "Morgan")
		},
	}
	router := newTestRouter(svc)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/orders/id/ord-1/edit",
		jsonBody(t, editRequest{SessionID: "sess-1"})))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}

	var resp struct {
		Details map[string]any `json:"details"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Details["owner_display_name"] != "Morgan" {
		t.Fatalf("details = %v, want owner_display_name Morgan", resp.Details)
	}
}

func TestUpdateOrderForwardsSessionAndToken(t *testing.T) {
	var gotToken, gotSession string
	svc := &mockOrderService{
		updateFunc: func(ctx context.Context, identity auth.Identity, token, id, sessionID string, updates *model.OrderUpdate) error {
			gotToken = token
			gotSession = sessionID
			return nil
		},
	}
	router := newTestRouter(svc)

	req := withIdentity(httptest.NewRequest(http.MethodPatch, "/api/v1/orders/id/ord-1",
		jsonBody(t, updateOrderRequest{SessionID: "sess-1", Updates: model.OrderUpdate{Status: "confirmed"}})))
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	if gotToken != "tok-1" || gotSession != "sess-1" {
		t.Fatalf("token/session = %q/%q, want tok-1/sess-1", gotToken, gotSession)
	}
}

func TestUpdateOrderLockRefused(t *testing.T) {
	svc := &mockOrderService{
		updateFunc: func(ctx context.Context, identity auth.Identity, token, id, sessionID string, updates *model.OrderUpdate) error {
			return apperrors.Conflict("Edit lock is not held; reopen the order for editing")
		},
	}
	router := newTestRouter(svc)

	req := withIdentity(httptest.NewRequest(http.MethodPatch, "/api/v1/orders/id/ord-1",
		jsonBody(t, updateOrderRequest{SessionID: "stale"})))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestCloseEditNoContent(t *testing.T) {
	router := newTestRouter(&mockOrderService{})

	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/api/v1/orders/id/ord-1/edit",
		jsonBody(t, editRequest{SessionID: "sess-1"})))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &mockOrderService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Order, error) {
			return nil, apperrors.NotFoundWithID("Order", id)
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/id/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
