package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimiro1/banner"

	"github.com/xiaot623/taskagent/internal/adapter/llm"
	"github.com/xiaot623/taskagent/internal/config"
	"github.com/xiaot623/taskagent/internal/logging"
	"github.com/xiaot623/taskagent/internal/repository"
	"github.com/xiaot623/taskagent/internal/service"
	"github.com/xiaot623/taskagent/internal/tools"
	httpserver "github.com/xiaot623/taskagent/internal/transport/http"
	"github.com/xiaot623/taskagent/internal/transport/rpc"
	"github.com/xiaot623/taskagent/internal/transport/ws"
	"github.com/xiaot623/taskagent/policy"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, closer := logging.New(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir})
	defer closer.Close()

	printBanner()
	logger.Info("starting task agent",
		"http_port", cfg.HTTPPort,
		"database", cfg.DatabaseURL,
		"model", cfg.Model,
		"mock", cfg.MockMode(),
	)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SeedSampleTasks {
		n, err := db.PopulateSampleTasks(ctx)
		if err != nil {
			logger.Error("failed to seed sample tasks", "error", err)
			os.Exit(1)
		}
		logger.Info("seeded sample tasks", "count", n)
	}

	// Initialize policy engine
	policyEngine, err := policy.NewDefaultEngine(ctx)
	if err != nil {
		logger.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	// Initialize service
	llmClient := llm.NewLLMClient(cfg, logging.Component(logger, "llm"))
	registry := tools.NewDefaultRegistry(db, nil)
	svc := service.New(db, registry, llmClient, cfg, policyEngine, logging.Component(logger, "service"))
	go svc.RunSessionReaper(ctx)

	server := httpserver.NewServer(svc, ws.NewServer(cfg, svc, logging.Component(logger, "ws")))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}()
	logger.Info("API started", "port", cfg.HTTPPort, "tools", registry.Names())

	var rpcServer *rpc.Server
	if cfg.RPCPort > 0 {
		rpcServer, err = rpc.NewServer(svc, logging.Component(logger, "rpc"))
		if err != nil {
			logger.Error("failed to initialize rpc server", "error", err)
			os.Exit(1)
		}
		if err := rpcServer.Listen(fmt.Sprintf(":%d", cfg.RPCPort)); err != nil {
			logger.Error("failed to start rpc server", "error", err)
			os.Exit(1)
		}
		go rpcServer.Serve()
		logger.Info("RPC started", "port", cfg.RPCPort)
	}

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info("shutting down task agent")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown server gracefully", "error", err)
	}
	if rpcServer != nil {
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown rpc server gracefully", "error", err)
		}
	}

	logger.Info("task agent stopped")
}

func printBanner() {
	tpl := "{{ .Title \"TASK AGENT\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
