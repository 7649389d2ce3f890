package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/social-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		a.Log.Error("Failed to start app", "error", err)
		_ = a.Close(context.Background())
		os.Exit(1)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Run() }()

	exitCode := 0
	select {
	case <-ctx.Done():
		a.Log.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			a.Log.Error("Server stopped", "error", err)
			exitCode = 1
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
		exitCode = 1
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
