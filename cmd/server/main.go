package main

import (
	"context" // context package is needed for Redis operations
	"log"     // log package is needed for logging
	"time"    // Rate-limit windows

	"controlplane/internal/api"        // Custom package for API handlers
	"controlplane/internal/auth"       // Password, session and access authorities
	"controlplane/internal/config"     // Custom package for configuration
	"controlplane/internal/db"         // Schema definition
	"controlplane/internal/middleware" // Custom package for middleware
	"controlplane/internal/passkey"    // WebAuthn ceremonies
	"controlplane/internal/ratelimit"  // Sliding-window limiter
	"controlplane/internal/wallet"     // Wallet service

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Refuse to start in production with insecure default secrets
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}

	// Setup Data Source Name (DSN) and connect to the database
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	if err := gdb.AutoMigrate(db.Models()...); err != nil {
		logrus.Fatalf("failed to migrate schema: %v", err)
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Wire the core components
	users := auth.NewPasswordAuthority(gdb)
	sessions := auth.NewSessionAuthority(gdb, cfg.JWTSecret)
	access := auth.NewAccessController(gdb, sessions, cfg.MasterUser, cfg.ControlToken)
	ws := wallet.NewService(gdb, redisClient)
	ceremony, err := passkey.New(passkey.Config{
		RPID:      cfg.RPID,
		RPName:    cfg.RPName,
		RPOrigins: cfg.RPOrigins,
	}, gdb, sessions)
	if err != nil {
		logrus.Fatalf("failed to configure WebAuthn: %v", err)
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Per-IP sliding windows for the public endpoints
	signupLimit := ratelimit.New(5, time.Minute)
	loginLimit := ratelimit.New(10, time.Minute)
	ceremonyLimit := ratelimit.New(10, time.Minute)

	// Auth routes
	r.POST("/signup", middleware.RateLimit(signupLimit), api.RegisterHandler(users))
	r.POST("/login", middleware.RateLimit(loginLimit), api.LoginHandler(users, sessions))
	r.POST("/logout", api.LogoutHandler(sessions))

	// WebAuthn ceremony routes
	r.POST("/webauthn/register/options", middleware.RateLimit(ceremonyLimit), api.BeginWebAuthnRegistrationHandler(ceremony))
	r.POST("/webauthn/register/complete", api.CompleteWebAuthnRegistrationHandler(ceremony))
	r.POST("/webauthn/authenticate/options", middleware.RateLimit(ceremonyLimit), api.BeginWebAuthnAuthenticationHandler(ceremony))
	r.POST("/webauthn/authenticate/complete", api.CompleteWebAuthnAuthenticationHandler(ceremony))

	// Wallet routes (protected by session token)
	walletGroup := r.Group("/wallet")
	walletGroup.Use(middleware.SessionAuth(sessions))
	walletGroup.GET("", api.BalanceHandler(ws))                          // Balance endpoint
	walletGroup.GET("/transactions", api.TransactionHistoryHandler(ws)) // Transaction history endpoint

	// Wallet mutation routes (master only)
	r.POST("/wallet/credit", middleware.MasterOnly(access), api.CreditHandler(ws))
	r.POST("/wallet/debit", middleware.MasterOnly(access), api.DebitHandler(ws))

	// Deal routes
	r.GET("/deals", api.ListDealsHandler(ws))
	r.GET("/deals/:id", api.GetDealHandler(ws))
	r.POST("/deals", middleware.MasterOnly(access), api.CreateDealHandler(ws))
	r.POST("/deals/:id/activate", middleware.MasterOnly(access), api.SetDealActiveHandler(ws, true))
	r.POST("/deals/:id/deactivate", middleware.MasterOnly(access), api.SetDealActiveHandler(ws, false))
	r.POST("/deals/:id/purchase", middleware.SessionAuth(sessions), api.PurchaseDealHandler(ws))

	// Sponsorship routes
	r.POST("/sponsored/add", middleware.MasterOnly(access), api.SponsorHandler(access, sessions))
	r.POST("/sponsored/remove", middleware.MasterOnly(access), api.UnsponsorHandler(access))
	r.GET("/sponsored", middleware.SessionAuth(sessions), api.SponsoredListHandler(access))

	// Admin routes (master only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.MasterOnly(access))
	adminGroup.GET("/users", api.ListUsersHandler(gdb, redisClient))             // List users endpoint
	adminGroup.POST("/set-pricing", api.SetPricingHandler(access))               // Pricing endpoint
	adminGroup.GET("/check-access/:username/:feature", api.CheckAccessHandler(access)) // Access introspection

	// Liveness endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
