package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/telemetra/device-event-svc/internal/config"
	"github.com/telemetra/device-event-svc/internal/database"
	"github.com/telemetra/device-event-svc/internal/handlers"
	"github.com/telemetra/device-event-svc/internal/logger"
	"github.com/telemetra/device-event-svc/internal/rabbitmq"
	"github.com/telemetra/device-event-svc/internal/repository"
	"github.com/telemetra/device-event-svc/internal/routes"
	"github.com/telemetra/device-event-svc/internal/service"
	"github.com/telemetra/device-event-svc/internal/worker"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, log); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := database.RunMigrations(&cfg.Database, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	rmq := rabbitmq.NewConnection(&cfg.RabbitMQ, log)
	if err := rmq.Connect(); err != nil {
		log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rmq.Close()

	if err := rmq.DeclareQueue(cfg.Worker.ActivityQueue); err != nil {
		log.Fatal("Failed to declare activity queue", zap.Error(err))
	}

	tenants := repository.NewTenantRepository(log)
	devices := repository.NewDeviceRepository(log)
	events := repository.NewEventRepository(log)

	activityWorker := worker.NewWorker(&cfg.Worker, rmq, db, devices, log)
	if err := activityWorker.Start(); err != nil {
		log.Fatal("Failed to start activity worker", zap.Error(err))
	}
	defer func() {
		if err := activityWorker.Stop(); err != nil {
			log.Error("Error stopping activity worker", zap.Error(err))
		}
	}()

	publisher := rabbitmq.NewActivityPublisher(rmq, cfg.Worker.ActivityQueue)
	svc := service.NewIngestService(db, tenants, devices, events, publisher, cfg.Query.PageSize, log)

	app := fiber.New(fiber.Config{
		AppName:      "Device Event Service",
		ServerHeader: "Fiber",
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	eventsHandler := handlers.NewEventsHandler(svc, &cfg.Ingest, log)
	healthHandler := handlers.NewHealthHandler(db, rmq)
	routes.SetupRoutes(app, eventsHandler, healthHandler)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		log.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
