package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/auth"
	authpg "github.com/ajirinow/backend/internal/auth/postgres"
	"github.com/ajirinow/backend/internal/core/events"
	"github.com/ajirinow/backend/internal/entitlement"
	entitlementpg "github.com/ajirinow/backend/internal/entitlement/postgres"
	"github.com/ajirinow/backend/internal/listing"
	listingpg "github.com/ajirinow/backend/internal/listing/postgres"
	"github.com/ajirinow/backend/internal/lock"
	"github.com/ajirinow/backend/internal/metrics"
	"github.com/ajirinow/backend/internal/mpesa"
	"github.com/ajirinow/backend/internal/payment"
	paymentpg "github.com/ajirinow/backend/internal/payment/postgres"
	"github.com/ajirinow/backend/internal/transport"
	"github.com/ajirinow/backend/internal/transport/rest"
	"github.com/ajirinow/backend/internal/transport/swagger"
	"github.com/ajirinow/backend/internal/user"
	userpg "github.com/ajirinow/backend/internal/user/postgres"
	"github.com/ajirinow/backend/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and M-Pesa callbacks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Gorm   *gorm.DB
	Redis  *redis.Client
	Bus    *events.EventBus
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.Bus.Drain(ctx); err != nil {
			deps.Logger.Warn("event handlers still running at shutdown", "error", err)
		}
		if deps.Redis != nil {
			_ = deps.Redis.Close()
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config
	lg := deps.Logger
	base := transport.NewBaseHandler(lg)
	evaluator := entitlement.NewEvaluator(nil)

	var locker lock.Locker = lock.NewKeyedMutex()
	var checks []rest.Check
	if deps.Redis != nil {
		checks = append(checks, rest.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}})
		if cfg.Payment.LockBackend == "redis" {
			locker = lock.NewRedisLocker(deps.Redis, cfg.Payment.LockTTL, lg)
		}
	}

	gateway := mpesa.NewClient(mpesa.Config{
		BaseURL:          cfg.Mpesa.BaseURL,
		ConsumerKey:      cfg.Mpesa.ConsumerKey,
		ConsumerSecret:   cfg.Mpesa.ConsumerSecret,
		ShortCode:        cfg.Mpesa.ShortCode,
		PassKey:          cfg.Mpesa.PassKey,
		CallbackURL:      cfg.Mpesa.CallbackURL,
		AccountReference: cfg.Mpesa.Reference(),
		Timeout:          cfg.Mpesa.GatewayTimeout(),
	}, lg)

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(authpg.NewRepository(deps.Gorm), tokens, lg)
	userService := user.NewService(userpg.NewRepository(deps.Gorm), evaluator, cfg.Security.BCryptCost, lg)
	listingService := listing.NewService(listingpg.NewListingRepository(deps.Gorm), evaluator, lg)
	paymentService := payment.NewService(
		paymentpg.NewPaymentRepository(deps.Gorm),
		gateway,
		locker,
		deps.Bus,
		payment.Options{StackSubscriptions: cfg.Payment.StackSubscriptions},
		lg,
	)
	directory := entitlement.NewDirectory(entitlementpg.NewCandidateRepository(deps.DB), evaluator, lg)

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, cfg, rest.Handlers{
		Auth:        auth.NewHandler(base, authService),
		User:        user.NewHandler(base, userService),
		Listing:     listing.NewHandler(base, listingService),
		Payment:     payment.NewHandler(base, paymentService),
		Webhook:     payment.NewWebhookHandler(base, paymentService),
		Entitlement: entitlement.NewHandler(directory),
	}, lg, checks...)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(config)
	lg := logger.LoggerWrapper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := swagger.Load(ctx, config.Server.OpenAPIPath); err != nil {
		lg.Warn("openapi document not usable, swagger UI will be empty", "error", err)
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	var rdb *redis.Client
	if config.Redis.Enabled {
		rdb, err = lock.NewRedisClient(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.DB)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	metrics.MustRegister()

	bus := events.NewEventBus(lg)
	payment.NewEventHandler(lg).RegisterEventHandlers(bus)

	return &Dependencies{
		Config: config,
		Logger: lg,
		DB:     db,
		Gorm:   gdb,
		Redis:  rdb,
		Bus:    bus,
		Router: chi.NewRouter(),
	}, nil
}

// initDB opens the pgx backed pool shared by sqlx readers and gorm.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
}
