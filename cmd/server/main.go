package main

import (
	"flag"
	"fmt"
	"time"

	"facegate/config"
	"facegate/internal/api/handlers"
	"facegate/internal/audit"
	"facegate/internal/cleanup"
	"facegate/internal/content"
	"facegate/internal/db"
	"facegate/internal/db/repository"
	"facegate/internal/face"
	"facegate/internal/gate"
	"facegate/internal/integrations/mqtt"
	"facegate/internal/liveness"
	"facegate/internal/logger"
	"facegate/internal/session"
	"facegate/internal/sse"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	log.Info("Initializing database...")
	database, err := db.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	repo := repository.NewSQLiteRepository(database)

	// SSE hub for live audit event streaming
	hub := sse.NewHub()
	go hub.Run()

	// Optional MQTT publisher
	publishers := []audit.Publisher{hub}
	mqttClient := mqtt.NewClient(cfg.MQTT)
	if cfg.MQTT.Enabled {
		if err := mqttClient.Start(); err != nil {
			log.Warnf("Continuing without MQTT: %v", err)
		} else {
			publishers = append(publishers, mqttClient)
			defer mqttClient.Stop()
		}
	}

	recorder := audit.NewRecorder(repo, publishers...)

	// Audit retention
	cleanupService := cleanup.NewService(repo, cfg.Cleanup.RetentionDays, 24*time.Hour)
	if cleanupService != nil {
		cleanupService.Start()
		defer cleanupService.Stop()
	}

	log.Info("Initializing face engine...")
	engine, err := face.NewEngine(&cfg.Recognition)
	if err != nil {
		log.Fatalf("Failed to initialize face engine: %v", err)
	}
	defer engine.Close()

	orchestrator := gate.NewOrchestrator(cfg, engine, repo, recorder)
	livenessService := liveness.NewService(cfg.Liveness, engine)
	sessionStore := session.NewStore()
	catalog := content.NewCatalog()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(cors.Default())
	router.Use(session.CookieMiddleware(cfg.Server.SessionSecret))
	router.Use(session.Bind(sessionStore))

	// Enrolled face crops
	router.Static(cfg.Server.FacesURL, cfg.Server.FacesDir)

	api := router.Group("/api")
	apiHandler := handlers.NewAPIHandler(cfg, orchestrator, livenessService, repo, recorder, catalog, hub)
	apiHandler.RegisterRoutes(api)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Infof("Starting server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// requestLogger logs requests through logrus instead of gin's default writer.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": time.Since(start).String(),
		}).Debug("Request handled")
	}
}
