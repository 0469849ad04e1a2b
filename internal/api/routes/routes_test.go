package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refill-api-server/internal/auth"
	"refill-api-server/internal/directory"
	"refill-api-server/internal/identity"
	"refill-api-server/internal/ledger"
	"refill-api-server/internal/models"
	"refill-api-server/internal/socket"
	"refill-api-server/internal/store"
	"refill-api-server/internal/store/memstore"
	"refill-api-server/internal/workflow"
)

var (
	admin = identity.Identity{UserID: "admin-1", Email: "boss@example.com", Name: "Boss", Role: identity.RoleAdmin}
	alice = identity.Identity{UserID: "user-1", Email: "alice@example.com", Name: "Alice", Role: identity.RoleUser}
	bob   = identity.Identity{UserID: "user-2", Email: "bob@example.com", Name: "Bob", Role: identity.RoleUser}
)

type fakeReceipts struct{}

func (fakeReceipts) Store(_ context.Context, data []byte, name string) (models.FileReference, error) {
	return models.FileReference{Name: name, URL: "https://cdn.example.com/" + name, Size: int64(len(data)), ContentType: "image/png"}, nil
}

type server struct {
	t      *testing.T
	router *gin.Engine
	tokens *auth.Tokens
	ledger *ledger.Ledger
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := memstore.New(store.DefaultRegistry(nil))
	l := ledger.New(s)
	dir := directory.New(s, nil)
	for _, u := range []models.UserDetails{
		{UserID: admin.UserID, Email: admin.Email, Role: identity.RoleAdmin},
		{UserID: alice.UserID, Email: alice.Email, FirstName: "Alice"},
		{UserID: bob.UserID, Email: bob.Email, FirstName: "Bob"},
	} {
		u := u
		require.NoError(t, dir.Create(context.Background(), &u))
	}
	hub := socket.NewHub(nil)
	deps := workflow.Deps{Ledger: l, Receipts: fakeReceipts{}, Recipients: dir, Gateway: hub}
	tokens := auth.NewTokens("test-secret", time.Hour)

	router := SetupRouter(Dependencies{
		Ledger:           l,
		ItemRequests:     workflow.NewItemRequests(s, workflow.Config{}, deps),
		PurchaseRequests: workflow.NewPurchaseRequests(s, workflow.Config{}, deps),
		Directory:        dir,
		Hub:              hub,
		Tokens:           tokens,
	})
	return &server{t: t, router: router, tokens: tokens, ledger: l}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details map[string]any  `json:"details"`
}

func (s *server) do(as *identity.Identity, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.serve(as, req)
}

func (s *server) serve(as *identity.Identity, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	if as != nil {
		token, err := s.tokens.GenerateJWT(*as)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestAuthentication(t *testing.T) {
	s := newServer(t)

	rec, env := s.do(nil, http.MethodGet, "/api/v1/inventory", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", env.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(&alice, http.MethodGet, "/api/v1/inventory", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(&alice, http.MethodPost, "/api/v1/inventory", map[string]any{"name": "Pen", "quantity": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	rec, _ = s.do(&alice, http.MethodGet, "/api/v1/users", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestItemRequestFlowOverHTTP(t *testing.T) {
	s := newServer(t)

	rec, env := s.do(&alice, http.MethodPost, "/api/v1/requests", map[string]any{
		"items": []map[string]any{{"name": "Pen", "quantity": 5, "unitPrice": "0.50"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.ItemRequest](t, env.Data)
	assert.Equal(t, models.StatusPending, created.Status)

	rec, _ = s.do(&alice, http.MethodPut, "/api/v1/requests/"+created.ID+"/status", map[string]any{"status": "Approved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = s.do(&admin, http.MethodPut, "/api/v1/requests/"+created.ID+"/status", map[string]any{"status": "Approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusApproved, decode[models.ItemRequest](t, env.Data).Status)

	rec, _ = s.do(&admin, http.MethodPut, "/api/v1/requests/"+created.ID+"/status?status=4", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(&alice, http.MethodGet, "/api/v1/inventory/Pen", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, decode[models.InventoryRecord](t, env.Data).Quantity)

	rec, env = s.do(&alice, http.MethodGet, "/api/v1/requests?status=Completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.ItemRequest](t, env.Data), 1)
}

func TestRequestStatusErrors(t *testing.T) {
	s := newServer(t)

	rec, env := s.do(&admin, http.MethodGet, "/api/v1/requests/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Code)

	rec, env = s.do(&admin, http.MethodPut, "/api/v1/requests/any/status", map[string]any{"status": "Purchased"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	rec, env = s.do(&alice, http.MethodPost, "/api/v1/requests", map[string]any{"items": []map[string]any{{"name": "Pen", "quantity": 0}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
}

func TestInventoryEndpoints(t *testing.T) {
	s := newServer(t)
	for _, name := range []string{"Apple", "Banana", "Cherry", "Date", "Elderberry"} {
		rec, _ := s.do(&admin, http.MethodPost, "/api/v1/inventory", map[string]any{"name": name, "quantity": 2})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	seen := map[string]bool{}
	token := ""
	for i := 0; i < 10; i++ {
		rec, env := s.do(&alice, http.MethodGet, "/api/v1/inventory/load-more?pageSize=2&continuationToken="+token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		page := decode[struct {
			Items             []models.InventoryRecord `json:"items"`
			ContinuationToken string                   `json:"continuationToken"`
		}](t, env.Data)
		assert.LessOrEqual(t, len(page.Items), 2)
		for _, r := range page.Items {
			assert.False(t, seen[r.Name], "duplicate %s", r.Name)
			seen[r.Name] = true
		}
		if page.ContinuationToken == "" {
			break
		}
		token = page.ContinuationToken
	}
	assert.Len(t, seen, 5)

	rec, env := s.do(&alice, http.MethodGet, "/api/v1/inventory/low-stock?threshold=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.InventoryRecord](t, env.Data), 5)

	rec, env = s.do(&alice, http.MethodGet, "/api/v1/inventory/Apple", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	apple := decode[models.InventoryRecord](t, env.Data)

	rec, env = s.do(&admin, http.MethodPost, "/api/v1/inventory/"+apple.ID+"/take", map[string]any{"quantity": 3})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", env.Code)

	rec, env = s.do(&admin, http.MethodPost, "/api/v1/inventory/"+apple.ID+"/take", map[string]any{"quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, decode[models.InventoryRecord](t, env.Data).Quantity)

	rec, env = s.do(&alice, http.MethodGet, "/api/v1/inventory/load-more?continuationToken=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
}

func receiptUpload(t *testing.T, path string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("receiptImages", "till.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPut, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestPurchaseRequestFlowOverHTTP(t *testing.T) {
	s := newServer(t)

	rec, env := s.do(&alice, http.MethodPost, "/api/v1/purchase-requests", map[string]any{
		"items": []map[string]any{{"name": "Ink", "quantity": 2, "unitPrice": 3.5}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, env.Data)
	id := created["id"].(string)
	assert.Equal(t, alice.UserID, created["userId"])
	assert.Equal(t, "7", created["totalPrice"])

	rec, _ = s.do(&admin, http.MethodPut, "/api/v1/purchase-requests/"+id+"/status?status=Approved", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.serve(&bob, receiptUpload(t, "/api/v1/purchase-requests/"+id+"/upload-receipt"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	rec, env = s.do(&bob, http.MethodPut, "/api/v1/purchase-requests/"+id+"/items", map[string]any{
		"items": []map[string]any{{"name": "Ink", "quantity": 9}},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = s.serve(&alice, receiptUpload(t, "/api/v1/purchase-requests/"+id+"/upload-receipt"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	purchased := decode[models.PurchaseRequest](t, env.Data)
	assert.Equal(t, models.StatusPurchased, purchased.Status)
	require.Len(t, purchased.Receipts, 1)
	assert.Equal(t, "till.png", purchased.Receipts[0].Name)

	rec, _ = s.do(&alice, http.MethodPut, "/api/v1/purchase-requests/"+id+"/status?status=Completed", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(&alice, http.MethodGet, "/api/v1/inventory/Ink", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[models.InventoryRecord](t, env.Data).Quantity)

	rec, _ = s.do(&alice, http.MethodGet, "/api/v1/purchase-requests/status/load-more?status=Completed", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, env = s.do(&admin, http.MethodGet, "/api/v1/purchase-requests/status/load-more?status=Completed&pageSize=5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[map[string]any](t, env.Data)
	assert.Len(t, page["items"], 1)
	assert.Equal(t, "", page["continuationToken"])

	today := time.Now().UTC().Format(time.DateOnly)
	rec, env = s.do(&admin, http.MethodGet, "/api/v1/purchase-requests/date-range?startDate="+today+"&endDate="+today, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]models.PurchaseRequest](t, env.Data), 1)

	rec, env = s.do(&admin, http.MethodGet, "/api/v1/purchase-requests/date-range?startDate=yesterday&endDate="+today, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	rec, _ = s.do(&alice, http.MethodDelete, "/api/v1/purchase-requests/"+id, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = s.do(&admin, http.MethodDelete, "/api/v1/purchase-requests/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserDirectoryEndpoints(t *testing.T) {
	s := newServer(t)

	rec, env := s.do(&admin, http.MethodPost, "/api/v1/users", map[string]any{"userId": "user-3", "email": "cy@example.com", "firstName": "Cy"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.UserDetails](t, env.Data)
	assert.Equal(t, identity.RoleUser, created.Role)

	rec, env = s.do(&admin, http.MethodPost, "/api/v1/users", map[string]any{"userId": "user-3", "email": "dup@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = s.do(&admin, http.MethodPut, "/api/v1/users/"+created.ID, map[string]any{"lastName": "Young"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Young", decode[models.UserDetails](t, env.Data).LastName)

	rec, env = s.do(&admin, http.MethodGet, "/api/v1/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.UserDetails](t, env.Data), 4)

	rec, _ = s.do(&admin, http.MethodDelete, "/api/v1/users/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(&admin, http.MethodGet, "/api/v1/users/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocketRequiresToken(t *testing.T) {
	s := newServer(t)

	rec, env := s.do(nil, http.MethodGet, "/api/v1/ws", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", env.Code)

	rec, _ = s.do(nil, http.MethodGet, "/api/v1/ws?token=garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
