package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"docuchat-backend/internal/documents"
	"docuchat-backend/internal/pipeline"
	"docuchat-backend/internal/queue"
	"docuchat-backend/internal/services/health"
	"docuchat-backend/internal/shared/config"
	"docuchat-backend/internal/shared/resilience"
	"docuchat-backend/internal/shared/server"
	"docuchat-backend/internal/shared/storage/db"
	"docuchat-backend/internal/shared/storage/object"
	localstore "docuchat-backend/internal/shared/storage/object/local"
	miniostore "docuchat-backend/internal/shared/storage/object/minio"
	s3store "docuchat-backend/internal/shared/storage/object/s3"
	"docuchat-backend/internal/shared/telemetry"
)

// App holds shared dependencies.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Store            object.Store
	Queue            queue.Client
	Catalog          documents.Catalog
	Pipeline         documents.Pipeline
	DocumentsService *documents.Service
	DocumentsHandler *documents.Handler
	Health           *health.Service
}

// Options overrides dependencies, mainly for tests. Nil fields are built from
// config.
type Options struct {
	Pipeline documents.Pipeline
	Catalog  documents.Catalog
	Queue    queue.Client
}

// Build prepares shared dependencies and wires routes.
func Build(cfg config.Config) (*App, error) {
	return BuildWith(context.Background(), cfg, Options{})
}

// BuildWith is Build with explicit overrides.
func BuildWith(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	app := &App{Config: cfg, Catalog: opts.Catalog, Pipeline: opts.Pipeline, Queue: opts.Queue}

	if app.Catalog == nil {
		sqlDB, err := buildDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		app.DB = sqlDB
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store

	if app.Queue == nil {
		queueClient, err := buildQueue(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if queueClient != nil {
			app.Queue = queueClient
		}
	}

	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		DocumentHandler: app.DocumentsHandler,
		Health:          app.Health,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "connect failed", "error": err})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID, cfg.LocatorTTL)
	case "minio":
		store, err := miniostore.New(miniostore.Options{
			Endpoint:   cfg.MinioEndpoint,
			AccessKey:  cfg.MinioAccessKey,
			SecretKey:  cfg.MinioSecretKey,
			Bucket:     cfg.MinioBucket,
			Region:     cfg.AWSRegion,
			UseSSL:     cfg.MinioUseSSL,
			LocatorTTL: cfg.LocatorTTL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return localstore.New(cfg.LocalStoreDir, filesBaseURL(cfg)), nil
	}
}

func filesBaseURL(cfg config.Config) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if base == "" {
		base = "http://localhost" + server.Addr(cfg.Port)
	}
	return base + "/api/v1/files"
}

func buildQueue(ctx context.Context, cfg config.Config) (*queue.SQSClient, error) {
	if strings.TrimSpace(cfg.Pipeline.RetryQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.Pipeline.RetryQueueURL)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) {
	cfg := app.Config

	if app.Catalog == nil {
		if app.DB != nil {
			app.Catalog = &documents.PGRepo{DB: app.DB}
		} else {
			app.Catalog = documents.NewMemoryRepo()
		}
	}

	if app.Pipeline == nil {
		app.Pipeline = pipeline.NewClient(pipeline.Config{
			NewDocumentURL: cfg.Pipeline.NewDocumentURL,
			DeleteURL:      cfg.Pipeline.DeleteURL,
			Timeout:        cfg.Pipeline.DispatchTimeout,
		}, nil, resilience.NewExecutor(resilience.DefaultConfig()))
	}

	blobs := documents.NewBlobWriter(app.Store, nil)
	dispatcher := documents.NewDispatcher(blobs, app.Pipeline, documents.DispatcherOptions{
		Timeout:     cfg.Pipeline.DispatchTimeout,
		Concurrency: cfg.Pipeline.DispatchConcurrency,
		Retry:       app.Queue,
	})

	app.DocumentsService = &documents.Service{
		Policy:     documents.NewPolicy(cfg.Upload.AllowedExtensions, cfg.Upload.MaxFileBytes),
		Blobs:      blobs,
		Catalog:    app.Catalog,
		Dispatcher: dispatcher,
		Pipeline:   app.Pipeline,
		// Deletion shares the dispatch bound.
		DeleteTimeout: cfg.Pipeline.DispatchTimeout,
	}
	app.DocumentsHandler = documents.NewHandler(app.DocumentsService, cfg.Upload.MaxRequestBytes, cfg.ExposeErrorDetails)
	app.Health = health.NewService(app.DB, app.Store)
}
