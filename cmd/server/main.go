package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/access"
	"github.com/receiptly/team-api/internal/config"
	"github.com/receiptly/team-api/internal/directory"
	"github.com/receiptly/team-api/internal/middleware"
	"github.com/receiptly/team-api/internal/migration"
	"github.com/receiptly/team-api/internal/notification"
	"github.com/receiptly/team-api/internal/pgwatch"
	"github.com/receiptly/team-api/internal/repository"
	"github.com/receiptly/team-api/internal/routes"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config        *config.Config
	db            *sql.DB
	logger        zerolog.Logger
	manager       *access.Manager
	directory     *directory.Service
	notifications notification.Service
	watcher       *pgwatch.Watcher
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Repositories
	memberRepo := repository.NewMemberRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	userRepo := repository.NewUserRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Team directory over the repositories.
	dir := directory.NewService(memberRepo, invitationRepo, userRepo, cfg.Team.InviteTTL, logger)

	// Membership change feed over LISTEN/NOTIFY.
	watcher, err := pgwatch.NewWatcher(cfg.DatabaseURL, memberRepo, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start membership watcher")
	}
	defer watcher.Close()

	// Mailer for invites.
	inviteMailer, err := notification.NewSMTPInviteMailer(cfg.Email)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure invite mailer")
	}

	notificationService := notification.NewService(
		notificationRepo,
		inviteMailer,
		cfg.Email.InviteURLTemplate,
		logger,
		notification.LogNotifier{Logger: logger},
	)

	// One access controller per signed-in user.
	manager := access.NewManager(access.ManagerConfig{
		Directory:     dir,
		Subscriptions: subscriptionRepo,
		Watcher:       watcher,
		Notifier:      notificationService,
		LoadTimeout:   cfg.Team.LoadTimeout,
		SignoutDelay:  cfg.Team.SignoutDelay,
		Logger:        logger,
	})

	app := &application{
		config:        cfg,
		db:            db,
		logger:        logger,
		manager:       manager,
		directory:     dir,
		notifications: notificationService,
		watcher:       watcher,
	}

	// Initialize the HTTP router and middleware.
	router := mux.NewRouter()
	routes.RegisterRoutes(router, db, manager, dir, notificationService, cfg, logger)

	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, logger)

	logger.Info().Msg("Application terminated.")
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the membership watcher so subscriber channels drain.
	app.watcher.Close()
	logger.Info().Msg("Membership watcher stopped.")
}
