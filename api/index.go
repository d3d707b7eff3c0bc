package handler

import (
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/artpro/etftracker/pkg/api"
	"github.com/artpro/etftracker/pkg/config"
	"github.com/artpro/etftracker/pkg/database"
	"github.com/artpro/etftracker/pkg/services"
)

var (
	router  *gin.Engine
	db      *gorm.DB
	cfg     *config.Config
	logger  zerolog.Logger
	once    sync.Once
	initErr error
)

// Initialize the application once
func initialize() {
	once.Do(func() {
		gin.SetMode(gin.ReleaseMode)

		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		cfg = config.Load()

		var err error
		db, err = database.InitDB(cfg.DatabasePath)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize database")
			initErr = err
			return
		}

		if err := database.InitializeAdminUser(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			logger.Error().Err(err).Msg("Failed to initialize admin user")
			initErr = err
			return
		}

		// No background scheduler in a serverless environment
		logger.Info().Msg("Running in serverless mode - scheduler disabled")

		router = api.SetupRouter(db, cfg, logger, services.NewYahooSource(), nil)
	})
}

// Handler is the entry point for the serverless function
func Handler(w http.ResponseWriter, r *http.Request) {
	initialize()

	if initErr != nil {
		log.Printf("Initialization error: %v", initErr)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	router.ServeHTTP(w, r)
}
