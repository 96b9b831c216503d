package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "tclab_control/docs"
	"tclab_control/internal/console"
	"tclab_control/internal/handlers"
	"tclab_control/internal/logger"
	"tclab_control/internal/plot"
	"tclab_control/internal/repository"
	"tclab_control/internal/repository/db"
	"tclab_control/internal/server"
	"tclab_control/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title TCLab PI Control API
// @version 1.0
// @description Runs a PI temperature loop on a TCLab board and serves its history.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	os.Exit(run(os.Stdin, "configs", "."))
}

// run returns the process exit code so every deferred cleanup has run
// before main exits.
func run(stdin io.Reader, configDirs ...string) int {
	cfg, err := loadConfig(configDirs...)
	if err != nil {
		boot := logger.Get(logger.InfoLevel)
		boot.Errorw("error reading config", "err", err)
		boot.Sync()
		return 1
	}
	log := logger.Get(cfg.LogLevel)
	defer log.Sync()

	sqlDB, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Errorw("failed to init sqlite", "path", cfg.DBPath, "err", err)
		return 1
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(sqlDB)
	services := service.NewService(repos, cfg.connector(), cfg.serviceConfig(), log)
	defer services.Control.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case modeConsole:
		err = runConsole(ctx, stdin, cfg, services, log)
	default:
		err = runServer(ctx, cfg, services, log)
	}
	if err != nil {
		log.Errorw("exiting with error", "mode", cfg.Mode, "err", err)
		return 1
	}
	return 0
}

// runConsole prompts for one run, executes it in the foreground and saves
// its plot. Ctrl-C interrupts the run; the heater is still switched off.
func runConsole(ctx context.Context, stdin io.Reader, cfg appConfig, services *service.Service, log *logger.Logger) error {
	params, err := console.NewPrompter(stdin, os.Stdout).RunParams(ctx)
	if errors.Is(err, console.ErrAborted) {
		log.Infow("no run started")
		return nil
	}
	if err != nil {
		return err
	}

	out, runErr := services.Control.Execute(ctx, params)
	if out.Run.ID == "" {
		return runErr
	}
	summarize(out, log)

	if len(out.Samples) > 0 {
		path := filepath.Join(cfg.PlotDir, fmt.Sprintf("run-%s.png", out.Run.ID))
		if err := plot.SaveFile(path, out.Run, out.Samples, plot.Options{}); err != nil {
			log.Errorw("failed to save plot", "path", path, "err", err)
		} else {
			log.Infow("plot saved", "path", path)
		}
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func summarize(out service.Outcome, log *logger.Logger) {
	run := out.Run
	if run.SteadyStateError == nil {
		log.Infow("run finished", "run_id", run.ID, "status", run.Status, "samples", run.SampleCount)
		return
	}
	log.Infow("run finished",
		"run_id", run.ID,
		"status", run.Status,
		"samples", run.SampleCount,
		"steady_state_error_c", *run.SteadyStateError,
	)
}

// runServer serves the HTTP API until ctx is cancelled, then drains any
// active run and shuts the server down.
func runServer(ctx context.Context, cfg appConfig, services *service.Service, log *logger.Logger) error {
	apiHandler := handlers.NewHandler(services, log)
	srv := &server.Server{}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("http server listening", "port", cfg.Port, "driver", cfg.Device.Driver)
		errCh <- srv.Run(cfg.Port, apiHandler.InitRoutes())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infow("shutting down server...")
	services.Control.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
