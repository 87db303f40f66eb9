// Package server builds the catalog admin application from its config and
// runs the HTTP API and gRPC health endpoints until a signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/catalogadmin/internal/logging"
	"github.com/dmitrijs2005/catalogadmin/internal/server/blobstore"
	"github.com/dmitrijs2005/catalogadmin/internal/server/catalog"
	"github.com/dmitrijs2005/catalogadmin/internal/server/config"
	"github.com/dmitrijs2005/catalogadmin/internal/server/httpapi"
	"github.com/dmitrijs2005/catalogadmin/internal/server/repositories/records"
	"github.com/dmitrijs2005/catalogadmin/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/catalogadmin/internal/server/services"
	"github.com/dmitrijs2005/catalogadmin/internal/server/upload"

	gs "github.com/dmitrijs2005/catalogadmin/internal/server/grpc"
)

// localFilesPrefix is the URL path the local blob store is served under.
const localFilesPrefix = "/files"

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	repomanager    repomanager.RepositoryManager
	userService    *services.UserService
	catalogService *services.CatalogService
	localBlobDir   string
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()

	recs, err := newRecordStore(ctx, c, db, rm)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store, localDir, err := newBlobStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	uploader := upload.New(store, logger, upload.WithUniqueNames(c.UniqueBlobNames))

	return &App{
		config:         c,
		logger:         logger,
		db:             db,
		repomanager:    rm,
		userService:    services.NewUserService(db, rm, c, logger),
		catalogService: services.NewCatalogService(catalog.Default(), recs, uploader, store, c, logger),
		localBlobDir:   localDir,
	}, nil
}

func newRecordStore(ctx context.Context, c *config.Config, db *sql.DB, rm repomanager.RepositoryManager) (records.Repository, error) {
	switch c.DocStore {
	case config.DocStorePostgres:
		return rm.Records(db), nil
	case config.DocStoreDynamoDB:
		client, err := records.NewDynamoClient(ctx, c.S3Region, c.DynamoBaseEndpoint)
		if err != nil {
			return nil, fmt.Errorf("dynamodb init error: %w", err)
		}
		return records.NewDynamoRepository(client, c.DynamoTablePrefix), nil
	case config.DocStoreMemory:
		return records.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown doc store %q", c.DocStore)
	}
}

func newBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, string, error) {
	switch c.BlobStore {
	case config.BlobStoreS3:
		s, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
			Region:            c.S3Region,
			AccessKey:         c.S3RootUser,
			SecretKey:         c.S3RootPassword,
			Bucket:            c.S3Bucket,
			BaseEndpoint:      c.S3BaseEndpoint,
			PublicBaseURL:     c.S3PublicBaseURL,
			PresignExpiry:     c.PresignExpiry,
			DownloadURLExpiry: c.DownloadURLExpiry,
		})
		if err != nil {
			return nil, "", fmt.Errorf("s3 init error: %w", err)
		}
		return s, "", nil
	case config.BlobStoreLocal:
		s, err := blobstore.NewLocalStore(c.LocalBlobDir, localFilesPrefix)
		if err != nil {
			return nil, "", fmt.Errorf("local store init error: %w", err)
		}
		return s, s.Root(), nil
	default:
		return nil, "", fmt.Errorf("unknown blob store %q", c.BlobStore)
	}
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

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	opts := []httpapi.Option{
		httpapi.WithAllowedOrigins(app.config.CORSAllowedOrigins),
		httpapi.WithMaxUploadSize(app.config.MaxUploadSize),
		httpapi.WithAccessLog(os.Stdout),
	}
	if app.localBlobDir != "" {
		opts = append(opts, httpapi.WithFiles(app.localBlobDir))
	}

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.userService, app.catalogService, opts...)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run migrates the database and serves until ctx is cancelled or a
// termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "doc_store", app.config.DocStore, "blob_store", app.config.BlobStore)

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")
	return app.db.Close()
}
