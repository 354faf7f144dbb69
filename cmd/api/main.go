package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"FinMonitorAPI/internal/config"
	"FinMonitorAPI/internal/database"
	"FinMonitorAPI/internal/engine"
	"FinMonitorAPI/internal/handler"
	"FinMonitorAPI/internal/logger"
	"FinMonitorAPI/internal/mqtt"
	"FinMonitorAPI/internal/repository"
	"FinMonitorAPI/internal/server"
	"FinMonitorAPI/internal/websocket"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger since main logger isn't ready
		panic("Failed to load configuration: " + err.Error())
	}

	// 2. Initialize Logger
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		LogFilePath: cfg.Logging.FilePath,
		UseColors:   cfg.Logging.UseColors,
		WithCaller:  cfg.Logging.WithCaller,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Configuration validation failed: %v", err)
	}

	cfg.Print()
	log.Info("Starting Fin Monitor API Server")

	// 3. Database Connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Database connected successfully")

	if err := db.Health(context.Background()); err != nil {
		log.Fatal("Database health check failed: %v", err)
	}

	// 4. Initialize Repositories
	alertRepo := repository.NewAlertRepository(db.DB)
	dlqRepo := repository.NewDeadLetterRepository(db.DB)

	// 5. Initialize MQTT Client
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		MQTT:   &cfg.MQTT,
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create MQTT client: %v", err)
	}
	defer func(mqttClient *mqtt.Client) {
		if err := mqttClient.Disconnect(); err != nil {
			log.Error("Failed to disconnect MQTT: %v", err)
		}
	}(mqttClient)

	if err := mqttClient.Connect(); err != nil {
		log.Fatal("Failed to connect to MQTT broker: %v", err)
	}

	// 6. WebSocket Hub
	hub := websocket.NewHub(log)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	// 7. Processing Engine
	eng := engine.New(cfg.Engine, engine.Topics{
		DeadLetter:   cfg.MQTT.DeadLetterTopic,
		Notify:       cfg.MQTT.NotifyTopic,
		Incident:     cfg.MQTT.IncidentTopic,
		Storm:        cfg.MQTT.StormTopic,
		Escalation:   cfg.MQTT.EscalationTopic,
		ConsumerName: cfg.MQTT.ConsumerName,
	}, mqttClient, hub, alertRepo, dlqRepo, nil, log)
	eng.Start()

	// 8. MQTT Subscriptions
	if err := mqttClient.Subscribe(cfg.MQTT.EventsTopic, handleEvent(eng)); err != nil {
		log.Fatal("Failed to subscribe to events topic: %v", err)
	}

	log.Info("MQTT subscriptions active")

	// 9. Initialize Handlers
	alertHandler := handler.NewAlertHandler(eng, alertRepo, dlqRepo, log)
	baselineHandler := handler.NewBaselineHandler(eng, log)
	healthHandler := handler.NewHealthHandler(eng, db, mqttClient, log)
	reportHandler := handler.NewReportHandler(eng, alertRepo, log)

	// 10. Start HTTP Server
	srv := server.New(cfg, log)
	srv.RegisterHandlers(alertHandler, baselineHandler, healthHandler, reportHandler, hub)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Server failed: %v", err)
		}
	}()

	log.Info("API server ready on http://%s:%d", cfg.Server.Host, cfg.Server.Port)

	// 11. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting HTTP traffic first, then drain the engine so in-flight
	// events still reach the registry and the database.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error: %v", err)
	}

	if err := mqttClient.Unsubscribe(cfg.MQTT.EventsTopic); err != nil {
		log.Error("Failed to unsubscribe from events topic: %v", err)
	}

	eng.Shutdown(shutdownCtx)

	log.Info("Shutdown complete")
}

// handleEvent feeds broker payloads into the engine queue. Enqueueing never
// blocks the paho callback goroutine.
func handleEvent(eng *engine.Engine) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		eng.Submit(payload, topic)
		return nil
	}
}
