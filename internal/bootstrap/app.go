// Package bootstrap builds the shared dependency graph used by every binary.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/account"
	"coach-backend/internal/analyses"
	googleauth "coach-backend/internal/auth"
	"coach-backend/internal/coach"
	"coach-backend/internal/dashboard"
	"coach-backend/internal/llm"
	"coach-backend/internal/llm/gemini"
	"coach-backend/internal/llm/openai"
	"coach-backend/internal/queue"
	"coach-backend/internal/quota"
	"coach-backend/internal/report"
	sharedauth "coach-backend/internal/shared/auth"
	"coach-backend/internal/shared/config"
	"coach-backend/internal/shared/server"
	"coach-backend/internal/shared/storage/db"
	"coach-backend/internal/shared/storage/object"
	localstore "coach-backend/internal/shared/storage/object/local"
	s3store "coach-backend/internal/shared/storage/object/s3"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/textstats"
	"coach-backend/internal/transcripts"
	"coach-backend/internal/users"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.Store
	Queue  queue.Client
	LLM    llm.Client

	Quota       *quota.Service
	Transcripts *transcripts.Service
	Analyses    *analyses.Service
	Coach       *coach.Service
	Dashboard   *dashboard.Service
	Account     *account.Service
	Users       *users.Service
	GoogleAuth  *googleauth.GoogleService
}

// Build connects storage, the queue and the model provider, then wires services and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	telemetry.SetLevel(cfg.LogLevel)
	sharedauth.Configure(cfg.JWTSecret, cfg.Env == "production", cfg.TokenTTL)

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	llmClient, err := BuildLLM(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		LLM:    llmClient,
	}
	handlers := buildServices(app)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:   cfg,
		Handlers: handlers,
		Ready:    app.ready,
	})
	return app, nil
}

// BuildLLM returns the configured provider client. In dev a missing key yields a client whose
// calls fail with llm.ErrService, so uploads and metrics still work.
func BuildLLM(ctx context.Context, cfg config.Config) (llm.Client, error) {
	key := cfg.LLMAPIKey()
	if key == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.llm_unconfigured", map[string]any{"provider": cfg.LLMProvider})
			return unconfiguredLLM{provider: cfg.LLMProvider}, nil
		}
		return nil, fmt.Errorf("%s API key is required", cfg.LLMProvider)
	}
	if cfg.LLMProvider == "openai" {
		client, err := openai.NewClient(key, cfg.LLMModel, cfg.LLMTimeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	// GEMINI_API_KEY may hold several comma-separated keys for rotation.
	client, err := gemini.NewClient(ctx, strings.Split(key, ","), cfg.LLMModel, cfg.LLMTimeout)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.memory_repos", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, db.ErrNoDatabaseURL
	}

	override := db.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		PingTimeout:     cfg.DBPingTimeout,
	}
	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.WithOverrides(db.DefaultLambdaOptions(), override))
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.WithOverrides(db.DefaultServerOptions(), override))
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repos", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}

	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if cfg.SQSQueueURL == "" {
		if cfg.AnalysisQueueMode == analyses.QueueModeSQS {
			return nil, errors.New("SQS_QUEUE_URL is required when ANALYSIS_QUEUE_MODE=sqs")
		}
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.SQSRegion)
}

func buildServices(app *App) []server.Routes {
	cfg := app.Config
	var (
		transcriptRepo transcripts.Repo
		analysisRepo   analyses.Repo
		userRepo       users.Repo
	)
	policy := quota.Policy{Limit: cfg.QuotaLimit, Window: cfg.QuotaWindow}
	if app.DB != nil {
		transcriptRepo = &transcripts.PGRepo{DB: app.DB}
		analysisRepo = &analyses.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
		app.Quota = quota.NewPostgresService(quota.NewPGStore(app.DB, policy))
	} else {
		transcriptRepo = transcripts.NewMemoryRepo()
		analysisRepo = analyses.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
		app.Quota = quota.NewService(policy)
	}

	app.Transcripts = &transcripts.Service{
		Store:       app.Store,
		Repo:        transcriptRepo,
		Stats:       textstats.New(cfg.SpeakingRateWPM),
		DefaultLens: cfg.DefaultLens,
		MaxBytes:    cfg.MaxUploadBytes,
	}
	app.Analyses = &analyses.Service{
		Repo:        analysisRepo,
		Transcripts: app.Transcripts,
		Quota:       app.Quota,
		LLM:         app.LLM,
		Queue:       app.Queue,
		QueueMode:   cfg.AnalysisQueueMode,
		Provider:    cfg.LLMProvider,
		Model:       cfg.LLMModel,
	}
	app.Coach = &coach.Service{
		Transcripts: app.Transcripts,
		LLM:         app.LLM,
		Model:       cfg.LLMModel,
	}
	app.Dashboard = &dashboard.Service{Transcripts: app.Transcripts, Analyses: app.Analyses}
	app.Account = account.NewService(transcriptRepo, analysisRepo)
	app.Users = users.NewService(userRepo)
	app.GoogleAuth = googleauth.NewGoogleService(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		cfg.UIRedirectURL,
		app.Users,
	)

	return []server.Routes{
		app.GoogleAuth,
		users.NewHandler(app.Users, app.Quota),
		quota.NewHandler(app.Quota),
		transcripts.NewHandler(app.Transcripts),
		analyses.NewHandler(app.Analyses, cfg.CORSAllowOrigin...),
		coach.NewHandler(app.Coach),
		dashboard.NewHandler(app.Dashboard),
		report.NewHandler(app.Analyses, app.Transcripts, app.Store),
		account.NewHandler(app.Account),
	}
}

func (a *App) ready() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Ping()
}

// Close releases the database handle. Lambda singletons stay open.
func (a *App) Close() error {
	if a.DB == nil || db.IsLambdaRuntime() {
		return nil
	}
	return a.DB.Close()
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

type unconfiguredLLM struct {
	provider string
}

func (u unconfiguredLLM) Analyze(context.Context, llm.AnalyzeRequest) (string, error) {
	return "", fmt.Errorf("%w: no API key configured for %s", llm.ErrService, u.provider)
}

func (u unconfiguredLLM) Chat(context.Context, llm.ChatRequest) (string, error) {
	return "", fmt.Errorf("%w: no API key configured for %s", llm.ErrService, u.provider)
}
