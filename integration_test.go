package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tavolo/tavolo-api/config"
	"github.com/tavolo/tavolo-api/controllers"
	"github.com/tavolo/tavolo-api/lifecycle"
	"github.com/tavolo/tavolo-api/manager"
	"github.com/tavolo/tavolo-api/models"
	"github.com/tavolo/tavolo-api/services"
	"github.com/tavolo/tavolo-api/store"
)

// setupRouter creates and configures the backend router for integration
// testing
func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/orders", controllers.ListOrders)
		v1.POST("/orders", controllers.CreateOrder)
		v1.PATCH("/orders/:id/status", controllers.UpdateOrderStatus)
		v1.PATCH("/orders/:id/payment", controllers.UpdateOrderPaymentStatus)
		v1.POST("/orders/:id/cancel", controllers.CancelOrder)
	}

	return router
}

type integrationFixture struct {
	db         *gorm.DB
	server     *httptest.Server
	api        *services.HTTPOrderAPI
	cache      *store.Cache
	reconciler *manager.Reconciler
	poller     *manager.Poller
}

// setupIntegration wires the full loop: an in-memory backend served over
// HTTP, the real HTTP client, and the manager core on top of it.
func setupIntegration(t *testing.T) *integrationFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderItem{}))
	config.SetDB(db)

	server := httptest.NewServer(setupRouter())
	t.Cleanup(server.Close)

	cache := store.NewCache()
	api := services.NewHTTPOrderAPI(server.URL, nil)
	reconciler := manager.NewReconciler(api, cache, nil)
	poller := manager.NewPoller(api, cache, reconciler, time.Minute, nil)

	return &integrationFixture{
		db:         db,
		server:     server,
		api:        api,
		cache:      cache,
		reconciler: reconciler,
		poller:     poller,
	}
}

func intPtr(i int) *int { return &i }

func seedDBOrder(t *testing.T, db *gorm.DB, order models.Order) models.Order {
	t.Helper()
	require.NoError(t, db.Create(&order).Error)
	return order
}

func TestHealthEndpointIntegration(t *testing.T) {
	router := setupRouter()

	req, _ := http.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "Expected status 200 OK")

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err, "Response should be valid JSON")
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "Tavolo order-management API is running", response["message"])
}

func TestDineInLifecycleIntegration(t *testing.T) {
	f := setupIntegration(t)
	ctx := context.Background()

	order := seedDBOrder(t, f.db, models.Order{
		CustomerName:  "Priya Nair",
		CustomerEmail: "priya@example.com",
		Status:        "pending",
		PaymentStatus: "pending",
		TableNumber:   intPtr(5),
		TotalPrice:    44.00,
		Items: []models.OrderItem{
			{Name: "Gnocchi", Quantity: 2, UnitPrice: 15.00},
			{Name: "House Red", Quantity: 1, UnitPrice: 14.00},
		},
	})

	// Initial bulk load through the real HTTP client.
	require.NoError(t, f.poller.Refresh(ctx))
	require.Equal(t, 1, f.cache.Len())

	// Walk the full dine-in lifecycle against the live backend.
	for _, target := range []lifecycle.Status{
		lifecycle.StatusConfirmed,
		lifecycle.StatusPreparing,
		lifecycle.StatusReady,
	} {
		_, err := f.reconciler.RequestTransition(ctx, order.ID, target)
		require.NoError(t, err, "transition to %s", target)
	}

	// Serving triggers the dependent payment capture against the backend.
	served, err := f.reconciler.RequestTransition(ctx, order.ID, lifecycle.StatusServed)
	require.NoError(t, err)
	assert.Equal(t, "served", served.Status)
	assert.Equal(t, "paid", served.PaymentStatus)

	// The cache merge never lost the fields the partial responses omitted.
	cached, err := f.cache.Get(order.ID)
	require.NoError(t, err)
	assert.Len(t, cached.Items, 2)
	assert.Equal(t, 44.00, cached.TotalPrice)
	assert.Equal(t, "Priya Nair", cached.CustomerName)

	// The backend row agrees.
	var stored models.Order
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, "served", stored.Status)
	assert.Equal(t, "paid", stored.PaymentStatus)

	assert.True(t, manager.IsFullyCompleted(cached))
}

func TestInvalidTransitionNeverReachesBackendIntegration(t *testing.T) {
	f := setupIntegration(t)
	ctx := context.Background()

	order := seedDBOrder(t, f.db, models.Order{
		CustomerName:  "Jonas Weber",
		CustomerEmail: "jonas@example.com",
		Status:        "pending",
		PaymentStatus: "pending",
		TotalPrice:    10.00,
	})
	require.NoError(t, f.poller.Refresh(ctx))

	_, err := f.reconciler.RequestTransition(ctx, order.ID, lifecycle.StatusDelivered)
	var invalid *manager.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, "pending", stored.Status, "backend row untouched by a locally rejected transition")
}

func TestCancellationIntegration(t *testing.T) {
	f := setupIntegration(t)
	ctx := context.Background()

	order := seedDBOrder(t, f.db, models.Order{
		CustomerName:  "Sam Okafor",
		CustomerEmail: "sam@example.com",
		Status:        "preparing",
		PaymentStatus: "pending",
		TotalPrice:    21.00,
	})
	require.NoError(t, f.poller.Refresh(ctx))

	cancelled, err := f.reconciler.RequestCancellation(ctx, order.ID, "kitchen out of stock")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)
	require.NotNil(t, cancelled.Notes)
	assert.Contains(t, *cancelled.Notes, "kitchen out of stock")

	var stored models.Order
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, "cancelled", stored.Status)
}

func TestStaleFilterRepairIntegration(t *testing.T) {
	f := setupIntegration(t)
	ctx := context.Background()

	order := seedDBOrder(t, f.db, models.Order{
		CustomerName:  "Table Fourteen",
		CustomerEmail: "fourteen@example.com",
		Status:        "ready",
		PaymentStatus: "pending",
		TableNumber:   intPtr(14),
		TotalPrice:    33.00,
	})
	require.NoError(t, f.poller.Refresh(ctx))

	filter := manager.FilterState{Tab: manager.TabReady}

	_, err := f.reconciler.RequestTransition(ctx, order.ID, lifecycle.StatusServed)
	require.NoError(t, err)

	proj, repaired, err := manager.ProjectAfterMutation(f.cache, filter, order.ID)
	require.NoError(t, err)
	assert.Equal(t, manager.TabAll, repaired.Tab)

	found := false
	for _, o := range proj.Orders {
		if o.ID == order.ID {
			found = true
		}
	}
	assert.True(t, found)
}
