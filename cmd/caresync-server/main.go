package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/caresync/caresync/internal/config"
	"github.com/caresync/caresync/internal/domain/appointment"
	"github.com/caresync/caresync/internal/domain/chat"
	"github.com/caresync/caresync/internal/domain/directory"
	"github.com/caresync/caresync/internal/domain/notification"
	"github.com/caresync/caresync/internal/platform/archive"
	"github.com/caresync/caresync/internal/platform/auth"
	"github.com/caresync/caresync/internal/platform/db"
	"github.com/caresync/caresync/internal/platform/janitor"
	"github.com/caresync/caresync/internal/platform/mail"
	"github.com/caresync/caresync/internal/platform/middleware"
	"github.com/caresync/caresync/internal/platform/ws"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caresync-server",
		Short: "CareSync appointment scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Support-chat archive: Redis when configured, in-memory otherwise.
	var sessions archive.SessionArchive
	if cfg.RedisURL != "" {
		redisArchive, err := archive.NewRedisArchive(cfg.RedisURL, cfg.SessionTTL())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisArchive.Close()
		sessions = redisArchive
		logger.Info().Msg("connected to redis")
	} else {
		sessions = archive.NewMemoryArchive()
		logger.Warn().Msg("REDIS_URL not set, support-chat history is in-memory only")
	}

	// Mail dispatcher
	sender := mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	mailer := mail.NewDispatcher(sender, logger)
	mailCtx, stopMail := context.WithCancel(ctx)
	defer stopMail()
	go mailer.Run(mailCtx)

	// Websocket hub
	hub := ws.NewHub()

	// Services
	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}

	dirSvc := directory.NewService(
		directory.NewHospitalRepoPG(pool),
		directory.NewDepartmentRepoPG(pool),
		directory.NewDoctorRepoPG(pool),
		directory.NewPatientRepoPG(pool),
	)

	notifRepo := notification.NewRepoPG(pool)
	notifSvc := notification.NewService(notifRepo, hub, mailer, logger)

	apptRepo := appointment.NewRepoPG(pool)
	queue := appointment.NewQueueBroadcaster(apptRepo, dirSvc, hub, logger)
	apptSvc := appointment.NewService(apptRepo, appointment.NewHistoryRepoPG(pool), dirSvc, queue, notifSvc, txRunner, logger)

	// Notification retention sweep
	purge := janitor.New("notification-purge", cfg.CleanupEvery(), notifSvc.PurgeTask(7*24*time.Hour), logger)
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go purge.Run(janitorCtx)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware([]byte(cfg.JWTSecret))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// REST surface
	apiV1 := e.Group("/api/v1", authMW)

	apptHandler := appointment.NewHandler(apptSvc, hub, logger)
	apptHandler.RegisterRoutes(apiV1)

	notifHandler := notification.NewHandler(notifSvc, hub, logger)
	notifHandler.RegisterRoutes(apiV1)

	// Websocket surface. Queue dashboards and support sessions are open;
	// notification and dm sockets require a token.
	chatHandler := chat.NewHandler(hub, sessions, logger)

	openWS := e.Group("/ws")
	apptHandler.RegisterWS(openWS)
	chatHandler.RegisterOpenWS(openWS)

	authWS := e.Group("/ws", authMW)
	notifHandler.RegisterWS(authWS)
	chatHandler.RegisterAuthWS(authWS)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
