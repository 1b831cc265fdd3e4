package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/proctoken/internal/app"
	"github.com/dropDatabas3/proctoken/internal/config"
	"github.com/dropDatabas3/proctoken/internal/http/server"
	"github.com/dropDatabas3/proctoken/internal/observability/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "Ruta al config YAML (opcional)")
	envFile := flag.String("env-file", ".env", "Archivo .env a cargar si existe")
	flag.Parse()

	// .env es opcional; las variables del entorno real ganan
	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
		FilePath:    cfg.Log.File,
		FileMaxAge:  cfg.Log.FileMaxAge,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg)
	if err != nil {
		log.Error("wiring failed", logger.Err(err))
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("cleanup error", logger.Err(err))
		}
	}()

	// sin clave activa y con el gate requerido el nodo no arranca
	if err := c.Manager.StartupInitialize(ctx); err != nil {
		log.Error("startup key initialization failed", logger.Err(err))
		return err
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, c.Handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return c.Manager.Run(gctx) })

	log.Info("node started",
		logger.String("env", cfg.App.Env),
		logger.String("addr", cfg.Server.Addr),
		logger.Bool("rotation", c.Manager.Rotating()),
		logger.Bool("registry_dev_mode", c.Registry.DevMode()),
	)

	if err := g.Wait(); err != nil {
		log.Error("node stopped with error", logger.Err(err))
		return err
	}
	log.Info("node stopped")
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
