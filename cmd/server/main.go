package main

import (
	"context"
	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"log"
	"os"
	"os/signal"
	"sessionchat/internal/chat"
	"sessionchat/internal/scheduler"
	"sessionchat/internal/server"
	"sessionchat/internal/storage"
	"syscall"
	"time"
)

type logConfig struct {
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

func newLogger() (*zap.Logger, error) {
	cfg := logConfig{}
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.Format == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func main() {
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	var (
		srvCfg   server.EnvConfig
		dbCfg    storage.Config
		chatCfg  chat.Config
		schedCfg scheduler.Config
	)
	for _, cfg := range []interface{}{&srvCfg, &dbCfg, &chatCfg, &schedCfg} {
		if err := env.Parse(cfg); err != nil {
			sugar.Fatalf("Cannot parse env config: %v", err)
		}
	}

	store, err := storage.New(sugar, dbCfg, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	svc := chat.NewService(sugar, store, chat.WithConfig(chatCfg))

	runner := scheduler.NewRunner(sugar, store, scheduler.WithConfig(schedCfg))
	svc.RegisterJobs(runner)

	serverOpts := []server.Option{
		server.WithEnvConfig(srvCfg),
		server.ReadTimeout(5 * time.Second),
		server.TimeoutHandler(10*time.Second, "Request timed out"),
		server.RegisterAfterShutdown(func() { _ = logger.Sync() }),
	}

	srv, err := server.NewServer(sugar, svc, serverOpts...)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error { return srv.Start(ctx) })

	err = g.Wait()

	sugar.Info("Closing store")
	store.Close()
	sugar.Info("Store is closed")

	if err != nil {
		sugar.Fatalf("Application stopped with error: %v", err)
	}
}
