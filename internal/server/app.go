// Package server wires the gateway together and runs it: the HTTP API and
// the gRPC health endpoint share one database pool and stop together on
// SIGINT, SIGTERM or SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/claimgate/internal/logging"
	"github.com/dmitrijs2005/claimgate/internal/server/archive"
	"github.com/dmitrijs2005/claimgate/internal/server/auth"
	"github.com/dmitrijs2005/claimgate/internal/server/billing"
	"github.com/dmitrijs2005/claimgate/internal/server/config"
	"github.com/dmitrijs2005/claimgate/internal/server/embedding"
	"github.com/dmitrijs2005/claimgate/internal/server/evidence"
	"github.com/dmitrijs2005/claimgate/internal/server/httpapi"
	"github.com/dmitrijs2005/claimgate/internal/server/inference"
	"github.com/dmitrijs2005/claimgate/internal/server/mcptools"
	"github.com/dmitrijs2005/claimgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/claimgate/internal/server/reputation"
	"github.com/dmitrijs2005/claimgate/internal/server/services"
	"github.com/dmitrijs2005/claimgate/internal/server/shared/db"
	"github.com/dmitrijs2005/claimgate/internal/server/verdict"

	gs "github.com/dmitrijs2005/claimgate/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	http   *httpapi.Server
	health *gs.HealthServer
	verify *services.VerifyService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	conn, err := db.Open(ctx, c.DatabaseDSN, db.DefaultPoolSettings())
	if err != nil {
		return nil, err
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app, err := build(ctx, c, conn, m, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return app, nil
}

// build assembles the components on top of an open pool.
func build(ctx context.Context, c *config.Config, conn *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) (*App, error) {

	ledger := billing.NewLedger(conn, m, logger)

	caches := auth.Caches{
		Bearer:    auth.NewTTLCache(c.BearerCacheTTL, c.BearerCacheSize),
		Keys:      auth.NewTTLCache(c.KeyCacheTTL, c.KeyCacheSize),
		Migration: auth.NewTTLCache(c.MigrationMarkerTTL, c.KeyCacheSize),
	}
	resolver := auth.NewResolver(conn, m, auth.NewJWTIdentity(c.JWTSecret), caches, c.LegacyScanLimit, logger)

	model := inference.NewModel(inference.NewHTTPClassifier(c.ClassifierURL, c.ClassifierTimeout))
	fetcher := evidence.NewFetcher(c.FetchTimeout)
	search := evidence.NewDuckDuckGo(c.SearchEndpoint, c.FetchTimeout, c.SearchRPS)
	retriever := evidence.NewRetriever(search, fetcher, c.SearchResults, logger)
	engine := verdict.NewEngine(model, retriever, c.ConfidenceThreshold, c.EvidenceMaxLen, logger)

	embedder, err := embedding.NewOllama(c.EmbedderModel, c.EmbedderURL, c.EmbedderTimeout)
	if err != nil {
		return nil, fmt.Errorf("embedder init error: %w", err)
	}

	var opts []services.MemoryOption
	if c.S3Bucket != "" {
		store, err := archive.NewS3(ctx, archive.Settings{
			Region:       c.S3Region,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("archive init error: %w", err)
		}
		opts = append(opts, services.WithArchive(store))
	}

	blocklist, err := reputation.LoadFile(c.BlocklistPath)
	if err != nil {
		return nil, fmt.Errorf("blocklist load error: %w", err)
	}
	if blocklist.Missing() {
		logger.Warn(ctx, "blocklist file not found, every domain reports OK", "path", c.BlocklistPath)
	}

	costs := services.Costs{
		Verify:          c.VerifyCost,
		StoragePerChunk: c.StorageCostPerChunk,
		Search:          c.SearchCost,
		VerifiedMemory:  c.VerifiedMemoryCost,
	}
	chunking := services.Chunking{Size: c.ChunkSize, Overlap: c.ChunkOverlap, CaptureMaxChars: c.CaptureMaxChars}

	vs := services.NewVerifyService(conn, m, engine, ledger, c.VerifyCost, logger)
	ms := services.NewMemoryService(conn, m, ledger, embedder, engine, fetcher, costs, chunking, logger, opts...)
	ks := services.NewKeyService(conn, m, caches.Keys, c.BcryptCost, logger)

	tools := mcptools.NewTools(vs, ms, blocklist, logger)

	router := httpapi.NewRouter(httpapi.Deps{
		Resolver:   resolver,
		Verifier:   vs,
		Memory:     ms,
		Keys:       ks,
		Balances:   ledger,
		Reputation: blocklist,
		MCP:        tools.Handler(httpapi.AccountID),
	}, logger)

	logger.Info(ctx, "components ready",
		"blocked_domains", blocklist.Len(),
		"archive", c.S3Bucket != "",
		"threshold", c.ConfidenceThreshold)

	return &App{
		config: c,
		logger: logger,
		db:     conn,
		http:   httpapi.NewServer(c.HTTPAddr, router, c.ShutdownTimeout, logger),
		health: gs.NewHealthServer(c.GRPCHealthAddr, conn, gs.DefaultCheckInterval, logger),
		verify: vs,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until a signal arrives, ctx is cancelled or either server
// fails, then shuts everything down.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := app.http.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()
	go func() {
		defer wg.Done()
		if err := app.health.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	// flush pending verification log writes before the pool goes away
	app.verify.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
