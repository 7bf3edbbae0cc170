package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ojpp/broadlistening/backend/internal/queue"
	mid "github.com/ojpp/broadlistening/backend/internal/server/middleware"
	"github.com/ojpp/broadlistening/backend/internal/storage"
	"github.com/ojpp/broadlistening/backend/internal/util"
	"github.com/ojpp/broadlistening/backend/pkg/ai"
	"github.com/ojpp/broadlistening/backend/pkg/ai/ollama"
	"github.com/ojpp/broadlistening/backend/pkg/ai/openai"
	"github.com/ojpp/broadlistening/backend/pkg/ai/rulebased"
	"github.com/ojpp/broadlistening/backend/pkg/cursor"
	"github.com/ojpp/broadlistening/backend/pkg/ecosystem"
	"github.com/ojpp/broadlistening/backend/pkg/logger"
	pgxstore "github.com/ojpp/broadlistening/backend/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := util.GetEnv("DATABASE_URL")
	runMigrations(databaseURL)

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		logger.Fatal("Failed to parse database config", "err", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	conn, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}

	if err := queue.SetupQueues(ch, []string{queue.AnalyzeQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3 := storage.NewS3Client(ctx)

	engine, err := ecosystem.New(ecosystem.Params{
		Store:    pgxstore.NewEcosystemDBStorage(conn),
		Analyzer: newAnalyzer(),
		Locker:   cursor.NewPgxLocker(conn),
	})
	if err != nil {
		logger.Fatal("Failed to create ecosystem engine", "err", err)
	}

	e.Use(mid.AppContextMiddleware(conn, ch, s3, engine, util.GetEnv("API_KEY")))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// newAnalyzer builds the opinion analyzer selected by the AI_ADAPTER
// environment variable. The rule-based adapter needs no external service
// and exists for local setups without a model endpoint.
func newAnalyzer() ai.OpinionAnalyzer {
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		analyzer, err := ollama.New(ollama.Params{
			ClassifyModel:  util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			LabelModel:     util.GetEnv("AI_CHAT_DESCRIBE_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama analyzer", "err", err)
		}
		return analyzer
	case "rulebased":
		return rulebased.New(int(util.GetEnvNumeric("AI_EMBED_DIM", 256)))
	default:
		return openai.New(openai.Params{
			ClassifyModel:  util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			LabelModel:     util.GetEnv("AI_CHAT_DESCRIBE_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
		})
	}
}

func runMigrations(databaseURL string) {
	m, err := migrate.New("file://migrations", databaseURL)
	if err != nil {
		logger.Fatal("Failed to load migrations", "err", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Failed to run migrations", "err", err)
	}
	logger.Info("Migrations up to date")
}
