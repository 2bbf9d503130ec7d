package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/septivank/invoice-review/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const startTimeout = 30 * time.Second

func main() {
	loadDotEnv()

	app := fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			ProvideRepository,
			ProvideAuditLog,
			ProvideValidator,
			ProvideClassifier,
			ProvideQueue,
			ProvideRenderer,
			ProvideExtractor,
			ProvideMQConnection,
			ProvideNotifier,
			ProvideQueueController,
			ProvideRouter,
		),
		fx.Invoke(restoreState, startIntakeConsumer, startHTTPServer),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tempLogger, _ := newLogger(&config.Config{ServiceName: "invoice-review"})
	tempLogger.Info("starting application...", zap.Duration("timeout", startTimeout))

	startCtx, startCancel := context.WithTimeout(context.Background(), startTimeout)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if startCtx.Err() == context.DeadlineExceeded {
			tempLogger.Error("APPLICATION START TIMEOUT: a dependency (Database or RabbitMQ) did not become reachable in time, see the connection errors above")
		}
		tempLogger.Fatal("application failed to start", zap.Error(err))
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), startTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Println("error stopping app:", err)
	}
}

// loadDotEnv loads the first .env found in the working directory or one of
// its two parents. A missing file is fine inside containers.
func loadDotEnv() {
	var envPaths []string
	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		envPaths = append(envPaths,
			filepath.Join(workDir, ".env"),
			filepath.Join(parentDir, ".env"),
			filepath.Join(filepath.Dir(parentDir), ".env"),
		)
	} else {
		envPaths = append(envPaths, ".env")
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			fmt.Printf("Loaded environment from: %s\n", envPath)
			return
		}
	}

	fmt.Println("No .env file found, using system environment variables")
}
