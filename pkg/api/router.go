package api

import (
	"github.com/artpro/etftracker/pkg/api/handlers"
	"github.com/artpro/etftracker/pkg/config"
	"github.com/artpro/etftracker/pkg/middleware"
	"github.com/artpro/etftracker/pkg/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SetupRouter sets up the Gin router with all routes and middleware.
// checker may be nil when no scheduler is running.
func SetupRouter(db *gorm.DB, cfg *config.Config, logger zerolog.Logger, prices services.PriceSource, checker handlers.CheckRunner) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	corsConfig := cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if origin == "http://localhost:3000" || origin == "http://localhost:3001" {
				return true
			}
			return origin == cfg.FrontendURL
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	router.Use(cors.New(corsConfig))

	portfolioService := services.NewPortfolioService(db, prices, logger)

	authHandler := handlers.NewAuthHandler(db, cfg, logger)
	etfHandler := handlers.NewETFHandler(db, cfg, logger)
	purchaseHandler := handlers.NewPurchaseHandler(db, logger, portfolioService)
	portfolioHandler := handlers.NewPortfolioHandler(db, logger, portfolioService, checker)

	// Public routes
	public := router.Group("/api")
	{
		public.POST("/login", authHandler.Login)
		public.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		})
	}

	// Protected routes
	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(cfg))
	{
		// Auth routes
		protected.POST("/logout", authHandler.Logout)
		protected.POST("/change-password", authHandler.ChangePassword)
		protected.GET("/me", authHandler.GetCurrentUser)

		// ETF routes
		protected.GET("/etfs", etfHandler.GetAllETFs)
		protected.GET("/etfs/:id", etfHandler.GetETF)
		protected.POST("/etfs", etfHandler.CreateETF)
		protected.PUT("/etfs/:id", etfHandler.UpdateETF)
		protected.DELETE("/etfs/:id", etfHandler.DeleteETF)
		protected.POST("/etfs/:id/reset", etfHandler.ResetAlertState)

		// Purchase routes
		protected.GET("/purchases", purchaseHandler.ListPurchases)
		protected.GET("/purchases/:id", purchaseHandler.GetPurchase)
		protected.POST("/purchases", purchaseHandler.CreatePurchase)
		protected.PUT("/purchases/:id", purchaseHandler.UpdatePurchase)
		protected.DELETE("/purchases/:id", purchaseHandler.DeletePurchase)

		// Portfolio routes
		protected.GET("/portfolio/summary", portfolioHandler.GetPortfolioSummary)

		// Alert routes
		protected.GET("/alerts", portfolioHandler.GetAlerts)
		protected.DELETE("/alerts/:id", portfolioHandler.DeleteAlert)

		// Manual price-check trigger
		protected.POST("/check", portfolioHandler.RunCheck)
	}

	return router
}
