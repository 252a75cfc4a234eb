package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"review-workflow/application"
	"review-workflow/config"
	"review-workflow/domain"
	"review-workflow/infrastructure"
	"review-workflow/interfaces"
)

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	return log
}

func main() {
	// Load .env
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("❌ %v", err)
	}
	log := newLogger(cfg)
	ctx := context.Background()

	// Connect DB
	db, err := infrastructure.OpenDatabase(cfg, log)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	assignments := infrastructure.NewAssignmentStore(db)
	templates := infrastructure.NewTemplateStore(db)
	answers := infrastructure.NewAnswerStore(db)
	directory := infrastructure.NewEmployeeDirectory(db)

	if _, err := infrastructure.SeedEmployees(ctx, cfg.TemplateDir, directory, log); err != nil {
		log.Fatalf("❌ failed to seed employees: %v", err)
	}
	if _, err := infrastructure.SeedTemplates(ctx, cfg.TemplateDir, templates, log); err != nil {
		log.Fatalf("❌ failed to seed templates: %v", err)
	}

	// Connect RabbitMQ, or only log events when no broker is configured
	var events application.EventPublisher = infrastructure.NewLogPublisher(log)
	if cfg.RabbitMQURL != "" {
		rmq, err := infrastructure.NewRabbitMQ(cfg.RabbitMQURL, cfg.EventQueue, log)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		defer rmq.Close()
		events = rmq

		// Notification consumer
		err = rmq.ConsumeEvents(func(e domain.WorkflowEvent) error {
			log.WithFields(infrastructure.EventFields(e)).Info("📥 notification")
			return nil
		})
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
	} else {
		log.Warn("RABBITMQ_URL is not set, workflow events are only logged")
	}

	svc := application.NewReviewService(
		assignments,
		templates,
		answers,
		domain.NewAuthorizationGate(directory),
		events,
		log,
		application.WithReminderInterval(cfg.ReminderInterval),
	)

	scheduler := infrastructure.NewReminderScheduler(svc, log)
	if err := scheduler.Start(cfg.ReminderSchedule); err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer scheduler.Stop()

	// Setup Gin router
	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), interfaces.RequestLogger(log))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	interfaces.NewHTTPHandler(
		router,
		svc,
		infrastructure.NewReportLabelSource(directory, templates),
		[]byte(cfg.JWTSecret),
		log,
	)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Infof("🚀 Server running on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	log.Info("server stopped")
}
