package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"notebook-bridge/config"
	"notebook-bridge/models"
	"notebook-bridge/providers/notebooklm"
	"notebook-bridge/providers/translator"
	"notebook-bridge/services"
	"notebook-bridge/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const serviceVersion = "0.3.0"

var (
	notebooksCreatedCounter    prometheus.Counter
	translationsAppliedCounter prometheus.Counter
	languageIncidentsCounter   prometheus.Counter
)

func init() {
	notebooksCreatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notebooks_created_total",
			Help: "Total number of notebooks created in the backend.",
		},
	)
	translationsAppliedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fallback_translations_total",
			Help: "Total number of answers corrected by the fallback translation.",
		},
	)
	languageIncidentsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "language_incidents_total",
			Help: "Total number of answers detected in the wrong language.",
		},
	)
	prometheus.MustRegister(notebooksCreatedCounter, translationsAppliedCounter, languageIncidentsCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.NotebookMapping{}, &models.SourceRecord{}, &models.AnalysisRecord{}, &models.LanguageIncident{})

	// Setup Clients
	backendClient := notebooklm.NewClient(cfg, logging)
	translatorClient := translator.NewClient(cfg, logging)
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}

	// Einmaliger Auth-Check beim Start; Ergebnis landet im Health-Endpoint.
	if backendClient.CheckAuth(context.Background()) {
		logging.Info("Notebook backend authenticated successfully")
	} else {
		logging.Warn("Notebook backend not authenticated - check the backend session")
	}

	// Setup Services
	store := storage.NewStore(db, logging)
	detector := services.NewLanguageDetector()
	glossary := services.NewGlossaryProvisioner(backendClient, logging)
	registry := services.NewNotebookRegistry(cfg, store, backendClient, glossary, s3Client, logging)
	reporter := services.NewIncidentReporter(store, logging, cfg.IncidentQueueSize)
	reporter.Counter = languageIncidentsCounter
	pipeline := services.NewLanguagePipeline(backendClient, translatorClient, detector, reporter, store, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupHealthRoutes(router, backendClient)
	setupNotebookRoutes(router, cfg, registry, store, logging)
	setupSourceRoutes(router, cfg, registry, logging)
	setupAskRoutes(router, cfg, registry, pipeline, store, logging)
	setupGenerateRoutes(router, cfg, store, backendClient, logging)
	setupDebugRoutes(router, backendClient, logging)

	// Setup Cron: Keep-Alive-Probe gegen das Backend
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.KeepAliveSchedule, func() {
		logging.Info("Running scheduled backend keep-alive check...")
		if backendClient.CheckAuth(context.Background()) {
			logging.Info("Keep-alive check passed")
		} else {
			logging.Warn("Keep-alive check failed - backend session lost")
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupHealthRoutes(router *gin.Engine, backendClient *notebooklm.Client) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:               "healthy",
			Service:              "notebook-bridge",
			Version:              serviceVersion,
			BackendAuthenticated: backendClient.IsAuthenticated(),
		})
	})
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":       "notebook-bridge",
			"version":       serviceVersion,
			"status":        "running",
			"authenticated": backendClient.IsAuthenticated(),
		})
	})
}

func setupNotebookRoutes(router *gin.Engine, cfg *config.Config, registry *services.NotebookRegistry, store *storage.Store, log *zap.Logger) {
	rg := router.Group("/notebooks")

	// Get-or-Create für einen User. Idempotent: ein bestehendes Mapping kommt
	// unverändert zurück.
	rg.POST("/", func(c *gin.Context) {
		var req models.CreateNotebookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		mapping, created, err := registry.GetOrCreate(c.Request.Context(), req.UserEmail, req.Category, req.NotebookName, req.PreferredLanguage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create or retrieve notebook. Check if the backend is authenticated."})
			return
		}
		if created {
			notebooksCreatedCounter.Inc()
		}

		count, _ := store.CountSources(mapping.UserKey)
		c.JSON(http.StatusOK, models.NewNotebookInfo(mapping, count))
	})

	// Admin-Liste aller Mappings.
	rg.GET("/", func(c *gin.Context) {
		mappings, err := store.ListMappings()
		if err != nil {
			log.Error("Database query for notebook mappings failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		infos := make([]models.NotebookInfo, 0, len(mappings))
		for i := range mappings {
			count, _ := store.CountSources(mappings[i].UserKey)
			infos = append(infos, models.NewNotebookInfo(&mappings[i], count))
		}
		c.JSON(http.StatusOK, gin.H{"count": len(infos), "notebooks": infos})
	})

	// Reiner Lookup über user_key-Bestandteile.
	rg.GET("/:user_email", func(c *gin.Context) {
		email := c.Param("user_email")
		category := c.DefaultQuery("category", cfg.DefaultCategory)
		userKey := models.UserKey(email, category)

		mapping, err := registry.Resolve(userKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if mapping == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "No notebook found for user: " + email})
			return
		}

		count, _ := store.CountSources(userKey)
		c.JSON(http.StatusOK, models.NewNotebookInfo(mapping, count))
	})

	// Validate-then-Repair: prüft die externe Ressource und ersetzt stale
	// Mappings durch eine Neuanlage unter demselben user_key.
	rg.POST("/ensure", func(c *gin.Context) {
		var req models.CreateNotebookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		category := req.Category
		if category == "" {
			category = cfg.DefaultCategory
		}
		userKey := models.UserKey(req.UserEmail, category)

		mapping, err := registry.EnsureValid(c.Request.Context(), userKey, req.PreferredLanguage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate notebook"})
			return
		}

		count, _ := store.CountSources(userKey)
		c.JSON(http.StatusOK, models.NewNotebookInfo(mapping, count))
	})

	rg.DELETE("/:user_email", func(c *gin.Context) {
		email := c.Param("user_email")
		category := c.DefaultQuery("category", cfg.DefaultCategory)
		userKey := models.UserKey(email, category)

		deleted, err := registry.Delete(c.Request.Context(), userKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete notebook"})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "No notebook found for user: " + email})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Notebook deleted for user: " + email})
	})
}

func setupSourceRoutes(router *gin.Engine, cfg *config.Config, registry *services.NotebookRegistry, log *zap.Logger) {
	rg := router.Group("/sources")

	rg.POST("/", func(c *gin.Context) {
		var req models.AddSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		category := req.Category
		if category == "" {
			category = cfg.DefaultCategory
		}
		userKey := models.UserKey(req.UserEmail, category)

		ok, err := registry.AddSource(c.Request.Context(), userKey, req.SourceType, req.Content, req.Title, req.AutoCreate)
		if err != nil || !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add source. Ensure notebook exists and the backend is authenticated."})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Source added successfully"})
	})

	rg.POST("/chess-game", func(c *gin.Context) {
		var req models.AddChessGameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		category := req.Category
		if category == "" {
			category = cfg.DefaultCategory
		}
		userKey := models.UserKey(req.UserEmail, category)

		ok, err := registry.AddChessGame(c.Request.Context(), userKey, req.PGN, req.GameTitle, req.Analysis)
		if err != nil || !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add chess game. Ensure notebook exists and the backend is authenticated."})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Chess game added successfully"})
	})

	router.POST("/save-note", func(c *gin.Context) {
		var req models.SaveNoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		log.Info("save_note called", zap.String("user_email", req.UserEmail), zap.String("title", req.Title))
		resp := registry.SaveNote(c.Request.Context(), req.UserEmail, req.Category, req.Content, req.Title, req.NotebookName, req.PreferredLanguage)
		if !resp.Success {
			c.JSON(http.StatusInternalServerError, resp)
			return
		}
		if resp.NotebookCreated {
			notebooksCreatedCounter.Inc()
		}
		c.JSON(http.StatusOK, resp)
	})
}

func setupAskRoutes(router *gin.Engine, cfg *config.Config, registry *services.NotebookRegistry, pipeline *services.LanguagePipeline, store *storage.Store, log *zap.Logger) {
	askHandler := func(c *gin.Context) {
		var req models.AskQuestionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		category := req.Category
		if category == "" {
			category = cfg.DefaultCategory
		}
		userKey := models.UserKey(req.UserEmail, category)

		// Mapping auflösen bzw. anlegen; stale Ressourcen werden hier repariert.
		mapping, err := registry.EnsureValid(c.Request.Context(), userKey, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve notebook. Check if the backend is authenticated."})
			return
		}

		resp, err := pipeline.Ask(c.Request.Context(), mapping, req.Question, req.ConversationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get answer. Ensure notebook exists and has sources."})
			return
		}
		if resp.WasTranslated {
			translationsAppliedCounter.Inc()
		}
		c.JSON(http.StatusOK, resp)
	}

	router.POST("/ask", askHandler)
	// Alias für Kompatibilität mit dem Orchestrator.
	router.POST("/inference", askHandler)

	router.GET("/analyses/:user_email", func(c *gin.Context) {
		email := c.Param("user_email")
		category := c.DefaultQuery("category", cfg.DefaultCategory)
		userKey := models.UserKey(email, category)

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))

		records, total, err := store.ListAnalyses(userKey, limit, skip)
		if err != nil {
			log.Error("Database query for analyses failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": total, "analyses": records})
	})
}

func setupGenerateRoutes(router *gin.Engine, cfg *config.Config, store *storage.Store, backendClient *notebooklm.Client, log *zap.Logger) {
	router.POST("/generate", func(c *gin.Context) {
		var req models.GenerateContentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		category := req.Category
		if category == "" {
			category = cfg.DefaultCategory
		}
		userKey := models.UserKey(req.UserEmail, category)

		mapping, err := store.GetMapping(userKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if mapping == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "No notebook found for user: " + req.UserEmail})
			return
		}

		result, err := backendClient.GenerateArtifact(c.Request.Context(), mapping.NotebookID, req.ContentType)
		if err != nil {
			log.Error("Artifact generation failed", zap.String("user_key", userKey), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate content."})
			return
		}
		c.JSON(http.StatusOK, models.GenerateContentResponse{TaskID: result.TaskID, Status: result.Status})
	})
}

func setupDebugRoutes(router *gin.Engine, backendClient *notebooklm.Client, log *zap.Logger) {
	router.GET("/debug/backend-notebooks", func(c *gin.Context) {
		if !backendClient.IsAuthenticated() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Backend not authenticated"})
			return
		}
		notebooks, err := backendClient.ListNotebooks(c.Request.Context())
		if err != nil {
			log.Error("Failed to list backend notebooks", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notebooks"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notebooks": notebooks})
	})
}
