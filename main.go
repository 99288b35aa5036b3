package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tavolo/tavolo-api/config"
	"github.com/tavolo/tavolo-api/controllers"
	"github.com/tavolo/tavolo-api/logger"
	"github.com/tavolo/tavolo-api/manager"
	"github.com/tavolo/tavolo-api/middleware"
	"github.com/tavolo/tavolo-api/models"
	"github.com/tavolo/tavolo-api/services"
	"github.com/tavolo/tavolo-api/store"
)

func main() {
	// Basic logging
	log.Println("Starting Tavolo order-management server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLog.Sync()

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(&models.Order{}, &models.OrderItem{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	// Manager core: cache, backend client, reconciler, poller
	cache := store.NewCache()
	orderAPI := services.NewHTTPOrderAPI(cfg.BackendBaseURL, nil)
	reconciler := manager.NewReconciler(orderAPI, cache, zapLog)
	poller := manager.NewPoller(orderAPI, cache, reconciler, cfg.PollInterval, zapLog)
	dashboard := controllers.NewDashboardController(cache, reconciler, poller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	// Initialize Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(cors.Default())

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Backend order API (the collaborator the manager core consumes)
		v1.GET("/orders", controllers.ListOrders)
		v1.POST("/orders", controllers.CreateOrder)
		v1.PATCH("/orders/:id/status", controllers.UpdateOrderStatus)
		v1.PATCH("/orders/:id/payment", controllers.UpdateOrderPaymentStatus)
		v1.POST("/orders/:id/cancel", controllers.CancelOrder)

		// Manager dashboard, behind Auth0 when configured
		dash := v1.Group("/dashboard")
		dash.Use(middleware.EnsureValidToken(cfg))
		{
			dash.GET("/orders", dashboard.GetOrders)
			dash.POST("/visibility", dashboard.SetVisibility)

			mutate := dash.Group("")
			mutate.Use(middleware.RequireScope(cfg, middleware.ScopeManageOrders))
			{
				mutate.POST("/orders/:id/transition", dashboard.Transition)
				mutate.POST("/orders/:id/cancel", dashboard.Cancel)
				mutate.POST("/orders/:id/payment", dashboard.UpdatePayment)
			}
		}
	}

	// Seed the cache before serving
	if err := poller.Refresh(ctx); err != nil {
		log.Printf("Initial order load failed, poller will retry: %v", err)
	}

	// Start server
	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Tavolo order-management API is running",
	})
}
