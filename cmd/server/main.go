package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/OpenCamTrap/camtrap/internal/approval"
	"github.com/OpenCamTrap/camtrap/internal/assetmanager"
	"github.com/OpenCamTrap/camtrap/internal/authtoken"
	"github.com/OpenCamTrap/camtrap/internal/config"
	"github.com/OpenCamTrap/camtrap/internal/database"
	"github.com/OpenCamTrap/camtrap/internal/esign"
	"github.com/OpenCamTrap/camtrap/internal/mapservice"
	"github.com/OpenCamTrap/camtrap/internal/middleware"
	"github.com/OpenCamTrap/camtrap/internal/normalize"
	"github.com/OpenCamTrap/camtrap/internal/router"
	"github.com/OpenCamTrap/camtrap/internal/submission"
	"github.com/OpenCamTrap/camtrap/internal/survey"
	"github.com/OpenCamTrap/camtrap/internal/uploads"
	"github.com/OpenCamTrap/camtrap/internal/webmap"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "reason", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	slog.Info("configuration loaded successfully",
		"db_host", cfg.Database.Host,
		"db_port", cfg.Database.Port,
		"db_name", cfg.Database.Name,
		"db_sslmode", cfg.Database.SSLMode,
	)
	slog.Info("survey configuration",
		"survey_id", cfg.Survey.SurveyID,
		"camera_folder_pattern", cfg.Survey.CameraFolderPattern,
		"choice_cache_ttl", cfg.Survey.ChoiceCacheTTL,
	)
	slog.Info("approval configuration",
		"require_approval_for_tagging", cfg.ESign.RequireApprovalForTagging,
	)
	slog.Info("server configuration",
		"port", cfg.Server.Port,
	)

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	if err := database.HealthCheck(db); err != nil {
		log.Fatalf("database health check failed: %v", err)
	}
	if err := db.AutoMigrate(
		&submission.Submission{},
		&submission.Photo{},
		&approval.Request{},
		&webmap.Map{},
	); err != nil {
		log.Fatalf("failed to migrate database schema: %v", err)
	}

	// Staging store for transient photo bytes
	storageDriver, err := uploads.NewStorageFromConfig(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize staging storage: %v", err)
	}
	staging := uploads.NewStaging(storageDriver)

	// External service clients share one token cache
	tokens := authtoken.NewCache(nil)
	surveyClient := survey.NewClient(cfg.Survey, tokens, nil)
	assetClient := assetmanager.NewClient(cfg.AssetManager, cfg.Metadata.DescriptionAttribute, tokens, nil)
	mapClient := mapservice.NewClient(cfg.MapService, tokens, nil)

	privateKey, err := os.ReadFile(cfg.ESign.PrivateKeyPath)
	if err != nil {
		log.Fatalf("failed to read esign private key: %v", err)
	}
	esignClient, err := esign.NewClient(cfg.ESign, privateKey, tokens, nil)
	if err != nil {
		log.Fatalf("failed to initialize esign client: %v", err)
	}

	// Domain services
	schema := normalize.NewSchema(cfg.Metadata.Attributes)
	matcher, err := submission.NewMatcher(db, surveyClient, schema, cfg.Survey)
	if err != nil {
		log.Fatalf("failed to initialize submission matcher: %v", err)
	}
	photoService := submission.NewPhotoService(db, staging, assetClient)
	choices := survey.NewChoiceList(surveyClient, cfg.Survey.SetupDateLayout, cfg.Survey.SetupDateField, cfg.Survey.ChoiceCacheTTL, nil)

	tracker := approval.NewTracker(db, esignClient, cfg.ESign, nil)
	tagAction := approval.NewTagAction(db, assetClient)
	tracker.Bind(approval.KindTag, tagAction)
	tagService := approval.NewTagService(tracker, tagAction, cfg.Metadata, cfg.ESign.RequireApprovalForTagging)

	mapService := webmap.NewService(db, matcher, photoService, assetClient, mapClient, tracker, cfg.Metadata)
	tracker.Bind(approval.KindMapPublish, webmap.NewPublishAction(db, mapClient))

	// Set up HTTP routes
	submissionRouter := router.NewSubmissionRouter(matcher, photoService, tagService, choices)
	approvalRouter := router.NewApprovalRouter(tracker)
	mapRouter := router.NewMapRouter(mapService)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/submissions/match", submissionRouter.HandleMatchSubmission)
	mux.HandleFunc("POST /api/submissions/{submissionID}/photos", submissionRouter.HandleUploadPhotos)
	mux.HandleFunc("POST /api/submissions/{submissionID}/tag-requests", submissionRouter.HandleCreateTagRequest)
	mux.HandleFunc("GET /api/camera-folders", submissionRouter.HandleGetCameraFolders)
	mux.HandleFunc("GET /api/approvals/{token}", approvalRouter.HandleGetApproval)
	mux.HandleFunc("POST /api/maps", mapRouter.HandleCreateMap)
	mux.HandleFunc("GET /api/maps/{mapID}", mapRouter.HandleGetMapByID)

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)

	// Wrap handler with CORS middleware
	handler := middleware.CORS(&cfg.CORS)(mux)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: handler,
	}

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	} else {
		slog.Info("server gracefully stopped")
	}

	slog.Info("server stopped")
}
