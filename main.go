package main

import (
	"log"
	"os"

	"github.com/artpro/etftracker/pkg/api"
	"github.com/artpro/etftracker/pkg/api/handlers"
	"github.com/artpro/etftracker/pkg/config"
	"github.com/artpro/etftracker/pkg/database"
	"github.com/artpro/etftracker/pkg/scheduler"
	"github.com/artpro/etftracker/pkg/services"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize admin user
	if err := database.InitializeAdminUser(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize admin user")
	}

	prices := services.NewYahooSource()
	mailer := services.NewSendGridMailer(cfg, logger)

	// Initialize scheduler if enabled
	var checker handlers.CheckRunner
	if cfg.EnableScheduler {
		sched := scheduler.New(db, cfg, logger, prices, mailer)
		if err := sched.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start scheduler")
		}
		defer sched.Stop()
		checker = sched
	}

	// Initialize and start API server
	router := api.SetupRouter(db, cfg, logger, prices, checker)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	logger.Info().Msgf("Starting server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}
