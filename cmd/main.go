package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yungbote/lumen-backend/internal/app"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if err := a.Start(ctx); err != nil {
		a.Log.Error("Background workers failed to start", "error", err)
		code = 1
	} else if err := a.Run(ctx); err != nil {
		a.Log.Error("Server failed", "error", err)
		code = 1
	}
	a.Log.Info("Shutting down")
	a.Close()
	stop()
	os.Exit(code)
}
