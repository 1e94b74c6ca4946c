// Package app initializes and runs the user service.
// It configures logging, storage, change notifications and routing,
// and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/patric-chuzhbe/usercrud/internal/config"
	"github.com/patric-chuzhbe/usercrud/internal/db/dynamodbstore"
	"github.com/patric-chuzhbe/usercrud/internal/db/jsondb"
	"github.com/patric-chuzhbe/usercrud/internal/db/memorystorage"
	"github.com/patric-chuzhbe/usercrud/internal/db/postgresdb"
	"github.com/patric-chuzhbe/usercrud/internal/db/storage"
	"github.com/patric-chuzhbe/usercrud/internal/handlers"
	"github.com/patric-chuzhbe/usercrud/internal/logger"
	"github.com/patric-chuzhbe/usercrud/internal/models"
	"github.com/patric-chuzhbe/usercrud/internal/notifier"
	"github.com/patric-chuzhbe/usercrud/internal/response"
	"github.com/patric-chuzhbe/usercrud/internal/router"
)

type tableEnsurer interface {
	EnsureTable(ctx context.Context) error
}

type changeNotifier interface {
	Notify(ctx context.Context, event models.UserEvent)
	Close() error
}

// App holds the configuration, the store client and the HTTP handler of one process.
type App struct {
	cfg         *config.Config
	db          storage.Storage
	notifier    changeNotifier
	handlers    *handlers.Handlers
	httpHandler http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage, creating the table when asked to
// - connecting the change notifier
// - setting up the router and middleware
func New(optionsProto ...config.InitOption) (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New(optionsProto...)
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()

	app.db, err = getStorageByType(ctx, app.cfg)
	if err != nil {
		return nil, err
	}

	if app.cfg.CreateTable {
		if ensurer, ok := app.db.(tableEnsurer); ok {
			if err := ensurer.EnsureTable(ctx); err != nil {
				return nil, err
			}
		}
	}

	app.notifier, err = getNotifier(app.cfg)
	if err != nil {
		return nil, err
	}

	app.handlers = handlers.New(
		app.db,
		response.NewFormatter(app.cfg.AllowedOrigins),
		handlers.WithNotifier(app.notifier),
	)
	app.httpHandler = router.New(app.handlers)

	logger.Log.Infow("app initialized",
		"storage", app.cfg.StorageType,
		"table", app.cfg.TableName,
		"allowed_origins", app.cfg.AllowedOrigins,
	)

	return app, nil
}

// Handlers exposes the transport-independent handlers, e.g. for the Lambda entrypoint.
func (a *App) Handlers() *handlers.Handlers {
	return a.handlers
}

func (a *App) HTTPHandler() http.Handler {
	return a.httpHandler
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing storage and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.closeResources()

	case err := <-serverErrCh:
		if closeErr := a.closeResources(); closeErr != nil {
			logger.Log.Errorw("cannot close resources", "error", closeErr)
		}
		return fmt.Errorf("server error: %w", err)
	}
}

func (a *App) closeResources() error {
	return errors.Join(a.notifier.Close(), a.db.Close())
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getStorageByType(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case config.StorageDynamoDB:
		return dynamodbstore.New(ctx, dynamodbstore.Options{
			TableName:       cfg.TableName,
			Region:          cfg.AWSRegion,
			Endpoint:        cfg.DynamoDBEndpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})

	case config.StoragePostgres:
		return postgresdb.New(
			ctx,
			cfg.DatabaseDSN,
			cfg.TableName,
			cfg.DBConnectionTimeout,
			postgresdb.WithDBPreReset(cfg.DBPreReset),
		)

	case config.StorageFile:
		return jsondb.New(cfg.DBFileName)

	case config.StorageMemory:
		return memorystorage.New()
	}

	return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
}

func getNotifier(cfg *config.Config) (changeNotifier, error) {
	if cfg.AMQPURL == "" {
		return notifier.Noop{}, nil
	}

	return notifier.New(cfg.AMQPURL, cfg.AMQPExchange)
}
