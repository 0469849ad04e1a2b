package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"refill-api-server/internal/api/handlers"
	"refill-api-server/internal/api/middleware"
	"refill-api-server/internal/auth"
	"refill-api-server/internal/directory"
	"refill-api-server/internal/identity"
	"refill-api-server/internal/ledger"
	"refill-api-server/internal/logger"
	"refill-api-server/internal/socket"
	"refill-api-server/internal/workflow"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Ledger           *ledger.Ledger
	ItemRequests     *workflow.ItemRequests
	PurchaseRequests *workflow.PurchaseRequests
	Directory        *directory.Directory
	Hub              *socket.Hub
	Tokens           *auth.Tokens
	Logger           *logger.Logger
	CORSOrigins      []string
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func SetupRouter(deps Dependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(log))
	router.Use(cors.New(corsConfig(deps.CORSOrigins)))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	inventoryHandler := &handlers.InventoryHandler{Ledger: deps.Ledger}
	requestHandler := &handlers.RequestHandler{Requests: deps.ItemRequests}
	purchaseHandler := &handlers.PurchaseRequestHandler{Requests: deps.PurchaseRequests}
	userHandler := &handlers.UserHandler{Directory: deps.Directory}
	webSocketHandler := &handlers.WebSocketHandler{Hub: deps.Hub, Tokens: deps.Tokens}

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/ws", webSocketHandler.ServeWs)

		protected := apiV1.Group("/")
		protected.Use(middleware.Authenticate(deps.Tokens))
		adminOnly := middleware.Authorize(identity.RoleAdmin)

		inventory := protected.Group("/inventory")
		{
			inventory.GET("", inventoryHandler.List)
			inventory.GET("/load-more", inventoryHandler.LoadMore)
			inventory.GET("/low-stock", inventoryHandler.LowStock)
			inventory.GET("/:id", inventoryHandler.Get)
			inventory.POST("", adminOnly, inventoryHandler.Restock)
			inventory.POST("/:id/take", adminOnly, inventoryHandler.Take)
		}

		requests := protected.Group("/requests")
		{
			requests.POST("", requestHandler.Create)
			requests.GET("", requestHandler.List)
			requests.GET("/load-more", requestHandler.LoadMore)
			requests.GET("/:id", requestHandler.Get)
			requests.PUT("/:id/status", adminOnly, requestHandler.UpdateStatus)
			requests.DELETE("/:id", adminOnly, requestHandler.Delete)
		}

		// Completion is open to the owner, so the status route relies on the
		// workflow's own role and ownership checks.
		purchases := protected.Group("/purchase-requests")
		{
			purchases.POST("", purchaseHandler.Create)
			purchases.GET("", purchaseHandler.List)
			purchases.GET("/load-more", purchaseHandler.LoadMore)
			purchases.GET("/status/load-more", adminOnly, purchaseHandler.LoadMoreByStatus)
			purchases.GET("/date-range", adminOnly, purchaseHandler.DateRange)
			purchases.GET("/:id", purchaseHandler.Get)
			purchases.PUT("/:id/upload-receipt", purchaseHandler.UploadReceipts)
			purchases.PUT("/:id/items", purchaseHandler.EditItems)
			purchases.PUT("/:id/status", purchaseHandler.UpdateStatus)
			purchases.DELETE("/:id", adminOnly, purchaseHandler.Delete)
		}

		users := protected.Group("/users")
		users.Use(adminOnly)
		{
			users.POST("", userHandler.Create)
			users.GET("", userHandler.List)
			users.GET("/:id", userHandler.Get)
			users.PUT("/:id", userHandler.Update)
			users.DELETE("/:id", userHandler.Delete)
		}
	}

	return router
}
