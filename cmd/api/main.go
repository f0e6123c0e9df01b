package main

import (
	"log"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"donatrack/internal/config"
	"donatrack/internal/donations"
	"donatrack/internal/handlers"
	"donatrack/internal/middleware"
	"donatrack/internal/notify"
	"donatrack/internal/paymongo"
	ws "donatrack/internal/websocket"
)

func main() {
	log.Println("Starting donation tracking server...")

	// Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("cannot load config:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config: ", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Connect to the Database
	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		log.Fatal("cannot connect to database:", err)
	}
	defer db.Close()
	log.Println("Successfully connected to PostgreSQL!")

	// Wire the donation core
	gateway := paymongo.NewClient(cfg.PaymongoBaseURL, cfg.PaymongoSecretKey)
	store := donations.NewSQLStore(db)
	hub := ws.NewHub()
	go hub.Run()

	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = &notify.SMTPMailer{Host: cfg.SMTPHost, Port: cfg.SMTPPort, From: cfg.SMTPFrom}
	} else {
		// Without SMTP config mail goes nowhere but the rest of the
		// fanout (notifications, dashboard alerts) still works.
		mailer = &notify.MockMailer{}
		log.Println("SMTP not configured, outbound mail disabled")
	}
	fanout := notify.NewService(db, mailer, hub, logger.With().Str("component", "notify").Logger())

	gatewayCfg := donations.GatewayConfig{
		SecretKey:   cfg.PaymongoSecretKey,
		BaseURL:     cfg.PaymongoBaseURL,
		RedirectURL: strings.TrimRight(cfg.APIBaseURL, "/") + "/api/donations/paymongo-redirect",
	}
	dispatch := donations.NewDispatchService(store, store, gateway, fanout, gatewayCfg,
		logger.With().Str("component", "dispatch").Logger())
	engine := donations.NewEngine(store, gateway, fanout, strings.TrimRight(cfg.FrontendBaseURL, "/"),
		logger.With().Str("component", "reconcile").Logger())
	cash := donations.NewCashService(store, fanout,
		logger.With().Str("component", "cash").Logger())

	// Set up our Gin router
	r := gin.Default()
	r.Use(cors.Default())

	// Simple test route
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	accountHandler := handlers.NewAccountHandler(db)
	donationHandler := handlers.NewDonationHandler(db, dispatch, engine, cash)
	wsHandler := handlers.NewWebSocketHandler(db, hub)

	// All API routes under /api
	api := r.Group("/api")
	{
		// Auth Endpoint
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Donation creation allows anonymous donors
		api.POST("/donations", middleware.OptionalAuth(cfg.JWTSecret), donationHandler.CreateDonation)
		api.GET("/donations", donationHandler.ListDonations)

		// Reconciliation entry points
		api.POST("/donations/confirm-source", middleware.OptionalAuth(cfg.JWTSecret), donationHandler.ConfirmSource)
		api.POST("/donations/webhook", donationHandler.HandleWebhook)
		api.GET("/donations/paymongo-redirect", donationHandler.PaymongoRedirect)

		// Protected Endpoints
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))
		{
			protected.GET("/me", accountHandler.GetMyProfile)
			protected.GET("/me/donations", accountHandler.GetMyDonations)
			protected.GET("/me/notifications", accountHandler.GetMyNotifications)
			protected.GET("/ws/staff", wsHandler.ServeWs)

			staff := protected.Group("/donations")
			staff.Use(middleware.RequireRole("staff", "department"))
			{
				staff.POST("/:id/verify-cash", donationHandler.VerifyCash)
				staff.POST("/:id/complete-cash", donationHandler.CompleteCash)
			}
		}
	}

	// Start the server
	log.Println("Server starting on", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatal("could not start server:", err)
	}
}
