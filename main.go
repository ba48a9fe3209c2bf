package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/niagahub/niaga-backend/database"
	"github.com/niagahub/niaga-backend/internal/jobs"
	"github.com/niagahub/niaga-backend/internal/models"
	"github.com/niagahub/niaga-backend/internal/realtime"
	"github.com/niagahub/niaga-backend/internal/routes"
	"github.com/niagahub/niaga-backend/internal/services"
	"github.com/niagahub/niaga-backend/internal/storage"
)

func main() {
	// Load .env for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			logrus.Warn("no .env file found, relying on environment variables")
		}
	}

	setupLogging()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logrus.Fatal("JWT_SECRET is required")
	}

	sessionsDir := os.Getenv("SESSIONS_DIR")
	if sessionsDir == "" {
		sessionsDir = "./sessions"
	}
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		logrus.Fatalf("failed to create sessions dir: %v", err)
	}

	// Initialize storage
	var store storage.Store
	var db *gorm.DB

	if os.Getenv("USE_MEMORY_STORE") == "true" {
		logrus.Warn("using in-memory storage (not for production)")
		store = storage.NewMemoryStore()
	} else {
		database.Connect()
		db = database.DB

		logrus.Info("[DB] running migrations")
		err := db.AutoMigrate(
			&models.WhatsAppSession{},
			&models.AutoReplyRule{},
			&models.AutoReplyLog{},
			&models.Conversation{},
			&models.Contact{},
			&models.Message{},
		)
		if err != nil {
			logrus.Fatalf("[DB] migration failed: %v", err)
		}
		store = storage.NewDatabaseStore(db)
	}

	// Realtime fan-out
	hub := realtime.NewHub(store)

	// Connection manager + auto-reply engine
	manager := services.NewConnectionManager(
		store, hub, services.NewWhatsmeowFactory(), sessionsDir, reconnectDelay())
	forwarder := services.NewWebhookForwarder(store)
	engine := services.NewAutoReplyService(store, hub, manager, forwarder)
	manager.SetMessageProcessor(engine)

	// Session maintenance: resume persisted connections, sweep stale QRs
	sessionJob := jobs.NewSessionJob(store, manager)
	sessionJob.Start()

	// HTTP surface
	app := fiber.New(fiber.Config{
		AppName: "Niaga Messaging Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	realtime.Register(app, hub, jwtSecret)
	routes.SetupRoutes(app, store, db, manager, jwtSecret)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful shutdown: stop jobs, close every live adapter (detaching
	// listeners), then the server.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logrus.Info("shutting down")
		sessionJob.Stop()
		manager.CloseAll()
		_ = app.Shutdown()
	}()

	logrus.Infof("Niaga messaging backend starting on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		logrus.Fatal(err)
	}
}

func setupLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}
}

func reconnectDelay() time.Duration {
	if v := os.Getenv("RECONNECT_DELAY_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return services.DefaultReconnectDelay
}
