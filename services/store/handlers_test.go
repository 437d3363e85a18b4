package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func newTestRouter(t *testing.T, f *storeFixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := NewStoreHandler(f.useCase, otel.Tracer("store-service-test"))

	r := gin.New()
	r.GET("/health", handler.HealthCheck)
	r.POST("/api/users", handler.RegisterUser)
	r.GET("/api/users/:id", handler.GetAccount)
	r.GET("/api/products", handler.ListProducts)
	r.GET("/api/categories", handler.ListCategories)
	r.POST("/api/purchases", handler.Purchase)
	r.GET("/api/orders", handler.ListOrders)
	r.GET("/api/admin/orders", handler.ListAllOrders)
	r.GET("/api/admin/stats", handler.GetStatistics)
	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	f := newStoreFixture(t, 0)
	r := newTestRouter(t, f)

	w := doRequest(r, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestListProductsEndpoint(t *testing.T) {
	f := newStoreFixture(t, 0)
	r := newTestRouter(t, f)

	w := doRequest(r, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Products []*Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Products, 6)

	// a chave digital nunca vaza na listagem
	assert.NotContains(t, w.Body.String(), "STEAM-7418-5296")

	w = doRequest(r, http.MethodGet, "/api/products?category=games", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Products, 2)
}

func TestListCategoriesEndpoint(t *testing.T) {
	f := newStoreFixture(t, 0)
	r := newTestRouter(t, f)

	w := doRequest(r, http.MethodGet, "/api/categories", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "software")
	assert.Contains(t, w.Body.String(), "games")
	assert.Contains(t, w.Body.String(), "accounts")
}

func TestPurchaseEndpoint(t *testing.T) {
	f := newStoreFixture(t, 0)
	r := newTestRouter(t, f)

	w := doRequest(r, http.MethodPost, "/api/purchases",
		`{"buyer_id":"buyer-1","product_id":"steam-wallet-20"}`)

	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		OrderID     int64  `json:"order_id"`
		TotalCents  int64  `json:"total_cents"`
		Reference   string `json:"reference"`
		KHQRPayload string `json:"khqr_payload"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotZero(t, body.OrderID)
	assert.Equal(t, int64(2000), body.TotalCents)
	assert.NotEmpty(t, body.Reference)
	assert.True(t, strings.HasPrefix(body.KHQRPayload, "KHQR|"))

	f.coordinator.Wait()
}

func TestPurchaseEndpointValidation(t *testing.T) {
	f := newStoreFixture(t, 0)
	r := newTestRouter(t, f)

	w := doRequest(r, http.MethodPost, "/api/purchases", `{"buyer_id":"buyer-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/purchases",
		`{"buyer_id":"buyer-1","product_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// quantidade negativa é entrada do usuário, não erro do servidor
	w = doRequest(r, http.MethodPost, "/api/purchases",
		`{"buyer_id":"buyer-1","product_id":"steam-wallet-20","quantity":-2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseEndpointOutOfStock(t *testing.T) {
	f := newStoreFixture(t, time.Hour)
	defer f.coordinator.Shutdown()
	r := newTestRouter(t, f)

	// esgota o estoque do produto mais raro
	for i := 0; i < 20; i++ {
		w := doRequest(r, http.MethodPost, "/api/purchases",
			`{"buyer_id":"buyer-1","product_id":"adobe-cc-1m"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doRequest(r, http.MethodPost, "/api/purchases",
		`{"buyer_id":"buyer-1","product_id":"adobe-cc-1m"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListOrdersEndpointRequiresBuyer(t *testing.T) {
	f := newStoreFixture(t, 0)
	r := newTestRouter(t, f)

	w := doRequest(r, http.MethodGet, "/api/orders", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterAndGetAccountEndpoints(t *testing.T) {
	f := newStoreFixture(t, 0)
	r := newTestRouter(t, f)

	w := doRequest(r, http.MethodPost, "/api/users",
		`{"user_id":"u42","username":"alice","first_name":"Alice"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(r, http.MethodGet, "/api/users/u42", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")

	w = doRequest(r, http.MethodGet, "/api/users/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	f := newStoreFixture(t, 0)
	r := newTestRouter(t, f)

	w := doRequest(r, http.MethodPost, "/api/purchases",
		`{"buyer_id":"buyer-1","product_id":"steam-wallet-20"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	f.coordinator.Wait()

	w = doRequest(r, http.MethodGet, "/api/admin/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Steam Wallet $20")

	w = doRequest(r, http.MethodGet, "/api/admin/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats Statistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalOrders)
	assert.Equal(t, 1, stats.CompletedOrders)
	assert.Equal(t, int64(2000), stats.TotalRevenueCents)
	assert.Equal(t, 1, stats.TotalUsers)
}
