package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NAHIAN-19/project-planner/config"
	"github.com/NAHIAN-19/project-planner/handlers"
	"github.com/NAHIAN-19/project-planner/logging"
	"github.com/NAHIAN-19/project-planner/middleware"
	"github.com/NAHIAN-19/project-planner/queue"
	"github.com/NAHIAN-19/project-planner/realtime"
	"github.com/NAHIAN-19/project-planner/repositories"
	"github.com/NAHIAN-19/project-planner/services"
	"github.com/NAHIAN-19/project-planner/tracing"
)

const serviceName = "planner-service"

// openStore connects the relational backend chosen by STORAGE_DRIVER.
func openStore(ctx context.Context, cfg config.StorageConfig) (services.Store, *repositories.SQLiteStore, error) {
	switch cfg.Driver {
	case config.StorageMongo:
		client, err := repositories.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		store := repositories.NewMongoStore(client, cfg.MongoDB)
		if err := store.EnsureIndexes(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, nil, nil
	case config.StorageSQLite:
		store, err := repositories.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// openNotificationStore picks Cassandra, or the SQLite database when one is open.
func openNotificationStore(ctx context.Context, cfg config.NotificationConfig, sqlite *repositories.SQLiteStore) (services.NotificationStore, func(), error) {
	switch cfg.Driver {
	case config.NotificationsCassandra:
		repo, err := repositories.NewNotificationRepo(cfg.CassandraDB, cfg.Keyspace)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.CreateTables(ctx); err != nil {
			repo.CloseSession()
			return nil, nil, err
		}
		return repo, repo.CloseSession, nil
	case config.NotificationsSQLite:
		if sqlite == nil {
			return nil, nil, errors.New("sqlite notifications need STORAGE_DRIVER=sqlite")
		}
		return repositories.NewSQLiteNotificationRepo(sqlite), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown notification driver %q", cfg.Driver)
	}
}

func main() {
	cfg := config.Load()

	logging.InitLogger(logging.Options{
		SystemName: serviceName,
		File:       cfg.Logging.File,
		Level:      cfg.Logging.Level,
		Stdout:     cfg.Logging.Stdout,
	})
	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting Planner Service...")

	if cfg.JWTSecret == "" {
		logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: JWT_SECRET is not set in the environment variables.")
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(serviceName, cfg.Tracing.File)
		if err != nil {
			logging.Logger.Fatalf("Event ID: TRACING_INIT_FAILED, Description: %v", err)
		}
		defer shutdown(context.Background())
	}

	plans, err := config.LoadPlans(cfg.PlansFile)
	if err != nil {
		logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, sqlite, err := openStore(ctx, cfg.Storage)
	if err != nil {
		cancel()
		logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: %v", err)
	}
	defer store.Close()

	notificationStore, closeNotifications, err := openNotificationStore(ctx, cfg.Notifications, sqlite)
	cancel()
	if err != nil {
		logging.Logger.Fatalf("Event ID: NOTIFICATION_STORE_FAILED, Description: %v", err)
	}
	defer closeNotifications()

	hub := realtime.NewHub(cfg.Server.CORSOrigin)
	defer hub.Close()

	var mailer services.Mailer
	if cfg.Email.APIKey != "" {
		mailer = services.NewSendGridMailer(cfg.Email.APIKey, cfg.Email.FromEmail, cfg.Email.FromName)
	} else {
		logging.Logger.Warn("Event ID: EMAIL_DISABLED, Description: SENDGRID_API_KEY is not set, notifications will not be emailed")
	}

	queueCfg := queue.DefaultConfig()
	queueCfg.MaxRetries = cfg.Notifications.MaxRetries
	queueCfg.RetryDelay = cfg.Notifications.RetryDelay
	dispatcher := services.NewDispatcher(notificationStore, store, hub, mailer, services.DispatcherConfig{
		Workers: cfg.Notifications.Workers,
		Queue:   queueCfg,
	})
	dispatcher.Start()

	taskService := services.NewTaskService(store, dispatcher)
	router := handlers.NewRouter(handlers.Handlers{
		Users:         handlers.NewUserHandler(services.NewUserService(store, plans)),
		Projects:      handlers.NewProjectHandler(services.NewProjectService(store, plans, dispatcher)),
		Tasks:         handlers.NewTaskHandler(taskService),
		Comments:      handlers.NewCommentHandler(services.NewCommentService(store, dispatcher)),
		Requests:      handlers.NewStatusChangeHandler(services.NewStatusChangeService(store, dispatcher)),
		Notifications: handlers.NewNotificationHandler(services.NewNotificationService(notificationStore), hub),
		Store:         store,
	}, []byte(cfg.JWTSecret))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      middleware.CORS(cfg.Server.CORSOrigin)(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go taskService.RunOverdueSweep(sweepCtx, cfg.OverdueSweep)

	go func() {
		logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logging.Logger.Infof("Event ID: SERVICE_SHUTDOWN, Description: Received %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Errorf("Event ID: SERVER_SHUTDOWN_FAILED, Description: %v", err)
	}
	stopSweep()
	dispatcher.Stop(shutdownCtx)
	logging.Logger.Info("Event ID: SERVICE_STOPPED, Description: Planner Service stopped")
}
