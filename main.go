package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Acurioustractor/palm-island-repository-sub002/api"
	"github.com/Acurioustractor/palm-island-repository-sub002/config"
	"github.com/Acurioustractor/palm-island-repository-sub002/database"
	"github.com/Acurioustractor/palm-island-repository-sub002/middleware"
	"github.com/Acurioustractor/palm-island-repository-sub002/models"
	"github.com/Acurioustractor/palm-island-repository-sub002/repository"
	"github.com/Acurioustractor/palm-island-repository-sub002/services"
)

func main() {
	runOnce := flag.Bool("run-placement", false, "execute one placement run and exit (for operator or cron use)")
	flag.Parse()

	// Load application configuration
	config.LoadConfig()

	// Initialize database connection
	db, err := database.Init()
	if err != nil {
		log.Fatalf("FATAL: [Main] Failed to initialize database: %v", err)
	}

	// Auto-migrate database schema
	runMigrations(db)

	// Initialize Repositories
	storyRepo := repository.NewStoryRepository(db)
	contributorRepo := repository.NewContributorRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	log.Println("INFO: [Main] Repositories initialized.")

	// Load the placement rule set: built-in defaults, or a validated YAML
	// override when one is configured.
	ruleSet := services.DefaultRuleSet()
	if rulesFile := config.AppConfig.Placement.RulesFile; rulesFile != "" {
		ruleSet, err = services.LoadRuleSet(rulesFile)
		if err != nil {
			log.Fatalf("FATAL: [Main] Failed to load placement rules from '%s': %v", rulesFile, err)
		}
	} else if err := ruleSet.Validate(); err != nil {
		log.Fatalf("FATAL: [Main] Built-in placement rules are invalid: %v", err)
	}

	// Initialize Services
	placementService := services.NewPlacementService(
		storyRepo,
		assignmentRepo,
		ruleSet,
		services.NewLogAuditSink(),
		nil,
	)
	log.Println("INFO: [Main] Services initialized.")

	// One-shot mode: run the engine once and exit. Running as a single
	// process per invocation is the run-level mutex; schedulers must not
	// overlap invocations against the same database.
	if *runOnce || config.AppConfig.Placement.RunOnStart {
		report, runErr := placementService.RunPlacement(context.Background())
		printRunReport(report)
		if *runOnce {
			if runErr != nil {
				log.Fatalf("FATAL: [Main] Placement run failed: %v", runErr)
			}
			return
		}
		if runErr != nil {
			log.Printf("ERROR: [Main] Startup placement run failed: %v", runErr)
		}
	}

	// Initialize API Handler with all dependencies
	apiHandler := api.NewAPIHandler(storyRepo, contributorRepo, assignmentRepo, placementService)
	log.Println("INFO: [Main] API Handler initialized.")

	// Create Gin engine
	r := gin.Default()
	r.SetTrustedProxies(nil)

	// Register middlewares
	r.Use(middleware.Logger())
	r.Use(middleware.Cors())
	log.Println("INFO: [Main] Middlewares registered.")

	// Register routes
	registerRoutes(r, apiHandler)
	log.Println("INFO: [Main] Routes registered.")

	// Start the server
	serverPort := ":" + config.AppConfig.Server.Port
	if config.AppConfig.Server.Port == "" {
		log.Println("WARN: [Main] Server port not configured, using default :8080.")
		serverPort = ":8080"
	}
	log.Printf("INFO: [Main] Starting server on port %s", serverPort)
	if err := r.Run(serverPort); err != nil {
		log.Fatalf("FATAL: [Main] Server failed to start: %v", err)
	}
}

func runMigrations(db *gorm.DB) {
	log.Println("INFO: [Main] Running database migrations...")
	err := db.AutoMigrate(
		&models.Contributor{},
		&models.Story{},
		&models.MediaItem{},
		&models.PlacementAssignment{},
	)
	if err != nil {
		log.Fatalf("FATAL: [Main] Failed to auto-migrate database: %v", err)
	}
	log.Println("INFO: [Main] Database migration completed.")
}

// printRunReport writes the operator-facing end-of-run report to the log.
func printRunReport(report *models.PlacementRunReport) {
	if report == nil {
		return
	}
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("WARN: [Main] Failed to encode run report: %v", err)
		return
	}
	log.Printf("INFO: [Main] Placement run report:\n%s", encoded)
}

func registerRoutes(r *gin.Engine, handler *api.APIHandler) {
	apiGroup := r.Group("/api")
	{
		// Story authoring/editing endpoints
		storyGroup := apiGroup.Group("/stories")
		{
			storyGroup.GET("", handler.ListStoriesHandler)
			storyGroup.POST("", handler.CreateStoryHandler)
			storyGroup.GET("/:storyID", handler.GetStoryHandler)
			storyGroup.PUT("/:storyID", handler.UpdateStoryHandler)
			storyGroup.DELETE("/:storyID", handler.DeleteStoryHandler)
			storyGroup.GET("/:storyID/protocol", handler.StoryProtocolHandler)
			storyGroup.POST("/:storyID/view", handler.EngagementHandler("views"))
			storyGroup.POST("/:storyID/share", handler.EngagementHandler("shares"))
			storyGroup.POST("/:storyID/like", handler.EngagementHandler("likes"))
		}

		// Contributor endpoints
		contributorGroup := apiGroup.Group("/contributors")
		{
			contributorGroup.GET("", handler.ListContributorsHandler)
			contributorGroup.POST("", handler.CreateContributorHandler)
			contributorGroup.GET("/:contributorID", handler.GetContributorHandler)
		}

		// Placement reads for the rendering layer
		apiGroup.GET("/placements/:page/:section", handler.GetPlacementsHandler)

		// Admin placement endpoints
		adminGroup := apiGroup.Group("/admin/placement")
		{
			adminGroup.POST("/run", handler.RunPlacementHandler)
			adminGroup.GET("/rules", handler.ListPlacementRulesHandler)
			adminGroup.GET("/runs/:runID", handler.GetPlacementRunHandler)
			adminGroup.GET("/preview/:page/:section", handler.PreviewPlacementsHandler)
			adminGroup.DELETE("/slots/:page/:section", handler.ClearPlacementsHandler)
		}
	}
}
