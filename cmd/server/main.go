package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/consultdesk/booking-backend/internal/cache"
	"github.com/consultdesk/booking-backend/internal/config"
	"github.com/consultdesk/booking-backend/internal/database"
	"github.com/consultdesk/booking-backend/internal/handlers"
	"github.com/consultdesk/booking-backend/internal/middleware"
	"github.com/consultdesk/booking-backend/internal/queue"
	"github.com/consultdesk/booking-backend/internal/services"
	"github.com/consultdesk/booking-backend/pkg/jwt"
	"github.com/consultdesk/booking-backend/pkg/meeting"
	"github.com/consultdesk/booking-backend/pkg/razorpay"
	"github.com/consultdesk/booking-backend/pkg/sealer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting ConsultDesk booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Redis backs both the read-view cache and the email queue
	logger.Info("Connecting to Redis...")
	redisClient, err := cache.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connection established")

	loc := cfg.Location()

	tokenBox, err := newTokenBox(cfg.Meeting.TokenKey, logger)
	if err != nil {
		logger.Fatalf("Invalid meeting token key: %v", err)
	}

	// Repositories
	consultantRepo := database.NewConsultantRepository(db.DB)
	clientRepo := database.NewClientRepository(db.DB)
	sessionRepo := database.NewSessionRepository(db.DB)
	transactionRepo := database.NewPaymentTransactionRepository(db.DB)
	quotationRepo := database.NewQuotationRepository(db.DB)
	credentialRepo := database.NewMeetingCredentialRepository(db.DB, tokenBox)
	webhookEventRepo := database.NewWebhookEventRepository(db.DB)
	auditRepo := database.NewPaymentAuditRepository(db.DB, logger)

	// Cache and email queue
	consultantCache := cache.NewConsultantCache(redisClient, cfg.Redis.CacheTTL, logger)

	redisOpt := queue.RedisOpt(cfg.Redis)
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	emailQueue := queue.NewEmailQueue(asynqClient, cfg.Queue, logger)

	emailHandler := queue.NewEmailHandler(
		queue.NewLogSender(logger),
		queue.NewRedisDeliveryMarker(redisClient, cfg.Queue.DedupeTTL),
		logger,
	)
	emailWorker := queue.NewWorker(redisOpt, cfg.Queue, emailHandler, logger)
	if err := emailWorker.Start(); err != nil {
		logger.Fatalf("Failed to start email worker: %v", err)
	}

	// External providers
	gateway := razorpay.NewClient(razorpay.Config{
		BaseURL:           cfg.Payment.BaseURL,
		KeyID:             cfg.Payment.KeyID,
		KeySecret:         cfg.Payment.KeySecret,
		Timeout:           cfg.Payment.RequestTimeout,
		RequestsPerSecond: cfg.Payment.RequestsPerSec,
	}, nil, logger)

	provisioner := meeting.NewProvisioner(cfg.Meeting.TokenSkew,
		meeting.NewGoogleMeetProvider(cfg.Meeting.GoogleEndpoint, cfg.Meeting.RequestTimeout),
		meeting.NewZoomProvider(cfg.Meeting.ZoomBaseURL, cfg.Meeting.ZoomRatePerSec, cfg.Meeting.RequestTimeout),
		meeting.NewJitsiProvider(cfg.Meeting.JitsiBaseURL),
	)

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)

	meetingService := services.NewMeetingService(provisioner, credentialRepo, sessionRepo, consultantRepo,
		clientRepo, emailQueue, consultantCache, logger)
	bookingService := services.NewBookingService(consultantRepo, clientRepo, sessionRepo, meetingService,
		emailQueue, consultantCache, cfg.Booking, loc, logger)
	paymentService := services.NewPaymentGatewayService(gateway, transactionRepo, sessionRepo, quotationRepo,
		auditRepo, cfg.Payment, cfg.Booking.PriceEpsilon, loc, logger)
	reconciler := services.NewPaymentReconciler(gateway, transactionRepo, auditRepo, meetingService,
		emailQueue, consultantCache, cfg.Payment.KeySecret, cfg.Payment.RefundWindowDays, logger)
	webhookService := services.NewWebhookService(reconciler, webhookEventRepo, auditRepo,
		cfg.Payment.WebhookSecret, logger)
	auditService := services.NewPaymentAuditService(transactionRepo, auditRepo)
	dashboardService := services.NewDashboardService(sessionRepo, consultantCache, logger)
	rateLimitService := services.NewRateLimitService(redisClient, services.RateLimitConfig{
		MaxEmailRequests: cfg.Booking.MaxPerEmail,
		EmailWindow:      cfg.Booking.EmailWindow,
		MaxIPRequests:    cfg.Booking.MaxPerIP,
		IPWindow:         cfg.Booking.IPWindow,
	}, logger)

	sessionJobs := services.NewSessionJobService(sessionRepo, consultantCache, logger)
	cronService := services.NewCronService(sessionJobs, cfg.Jobs.Schedule, logger)
	if cfg.Jobs.Enabled {
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
	} else {
		logger.Warn("Session reconciliation jobs disabled")
	}

	// Handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, meetingService, rateLimitService, logger)
	credentialHandler := handlers.NewMeetingCredentialHandler(meetingService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, reconciler, auditService, logger)
	webhookHandler := handlers.NewWebhookHandler(webhookService, logger)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService, logger)
	jobHandler := handlers.NewJobHandler(cronService, logger)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db, redisClient))

	v1 := router.Group("/api/v1")
	{
		public := v1.Group("/public")
		{
			public.POST("/consultants/:slug/book", bookingHandler.BookPublic)
		}

		// Checkout callbacks and webhooks are authenticated by gateway signatures
		payments := v1.Group("/payments")
		{
			payments.POST("/orders", paymentHandler.CreateOrder)
			payments.POST("/verify", paymentHandler.VerifyPayment)
			payments.POST("/failure", paymentHandler.ReportFailure)
			payments.POST("/webhook", webhookHandler.HandleWebhook)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(jwtService, logger))
		protected.Use(middleware.RequireActiveConsultant(consultantRepo, logger))
		{
			protected.POST("/sessions", bookingHandler.CreateSession)
			protected.POST("/sessions/:id/cancel", bookingHandler.CancelSession)
			protected.POST("/sessions/:id/meeting-link", bookingHandler.RepairMeetingLink)

			protected.PUT("/meeting-credentials/:platform", credentialHandler.ConnectPlatform)
			protected.GET("/consultant/dashboard", dashboardHandler.GetDashboard)

			protected.POST("/payments/:id/refund", paymentHandler.Refund)
			protected.GET("/payments/orders/:orderId/audit", paymentHandler.AuditTrail)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService, logger))
		admin.Use(middleware.RequireRole(jwt.RoleAdmin))
		{
			admin.POST("/jobs/run", jobHandler.RunNow)
			admin.GET("/jobs/status", jobHandler.Status)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	if cfg.Jobs.Enabled {
		cronService.Stop()
	}
	emailWorker.Shutdown()

	logger.Info("Server exited successfully")
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}
		if consultantCtx, ok := middleware.GetConsultantContext(c); ok {
			fields["consultant_id"] = consultantCtx.ConsultantID
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler reports database and Redis reachability
func healthCheckHandler(db database.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbStatus, redisStatus := "healthy", "healthy"
		if err := db.PingContext(ctx); err != nil {
			dbStatus = "unhealthy"
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}

		status := http.StatusOK
		overall := "healthy"
		if dbStatus != "healthy" || redisStatus != "healthy" {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":    overall,
			"database":  dbStatus,
			"redis":     redisStatus,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}

// newTokenBox returns nil when no key is configured; tokens are then stored as plaintext
func newTokenBox(key string, logger *logrus.Logger) (*sealer.Box, error) {
	if key == "" {
		logger.Warn("MEETING_TOKEN_KEY not set, meeting credentials are stored unsealed")
		return nil, nil
	}
	return sealer.New(key)
}
