package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/attendly/go-attendance-server/attendance"
	"github.com/attendly/go-attendance-server/auth"
	"github.com/attendly/go-attendance-server/internal/config"
	"github.com/attendly/go-attendance-server/postgres"
	"github.com/attendly/go-attendance-server/server"
	"github.com/attendly/go-attendance-server/sessions"
	"github.com/attendly/go-attendance-server/tenants"
	"github.com/attendly/go-attendance-server/token"
	"github.com/attendly/go-attendance-server/users"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.New()
	if err != nil {
		return errors.Wrap(err, "[run] config.New")
	}
	displayAppname(cfg.GetAppName())

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.GetDatabaseDSN())
	if err != nil {
		return errors.Wrap(err, "[run] postgres.Open")
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		return errors.Wrap(err, "[run] postgres.Migrate")
	}

	handler, err := buildServer(cfg, db, log)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: cfg.GetPort(), Handler: handler}
	go listenAndServe(httpServer, log)
	waitForStopSignal()
	return shutdown(httpServer)
}

func buildServer(cfg config.Config, db *sql.DB, log zerolog.Logger) (*server.Server, error) {
	tenantRepo := tenants.NewPostgresRepository(db)
	userRepo := users.NewPostgresRepository(db)
	sessionStore := sessions.NewPostgresStore(db)

	manager, err := token.New(cfg.GetTokenSecret(), tenantRepo, sessionStore,
		token.WithTokenTTL(cfg.GetTokenTTL()),
		token.WithIssuer(cfg.GetIssuer()))
	if err != nil {
		return nil, errors.Wrap(err, "[buildServer] token.New")
	}

	authService, err := auth.NewService(auth.Repos{
		Users:    userRepo,
		Tenants:  tenantRepo,
		Sessions: sessionStore,
	}, manager)
	if err != nil {
		return nil, errors.Wrap(err, "[buildServer] auth.NewService")
	}

	var guardOptions []auth.GuardOption
	if cfg.SuperAdminBypassAllowed() {
		guardOptions = append(guardOptions, auth.WithSuperAdminBypass())
	}
	guard := auth.NewGuard(guardOptions...)

	ledger, err := attendance.NewLedger(attendance.Repos{
		Periods: attendance.NewPostgresPeriodRepo(db),
		Records: attendance.NewPostgresRecordRepo(db),
	}, attendance.NewClassifier(attendance.WithGraceWindow(cfg.GetGraceWindow())))
	if err != nil {
		return nil, errors.Wrap(err, "[buildServer] attendance.NewLedger")
	}

	coordinator, err := sessions.NewCoordinator(sessionStore, log)
	if err != nil {
		return nil, errors.Wrap(err, "[buildServer] sessions.NewCoordinator")
	}

	return server.New(cfg, server.Deps{
		Auth:        authService,
		Guard:       guard,
		Ledger:      ledger,
		Coordinator: coordinator,
		Periods:     attendance.NewPostgresPeriodRepo(db),
		Tenants:     tenantRepo,
	}, log)
}

func listenAndServe(httpServer *http.Server, log zerolog.Logger) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
