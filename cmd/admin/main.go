package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"portfolio-chat/internal/admincli"
	"portfolio-chat/internal/bootstrap"
	"portfolio-chat/internal/config"
	"portfolio-chat/internal/pkg/logger"
	"portfolio-chat/pkg/admin"

	"github.com/fatih/color"
)

func main() {
	cfg := config.Load()
	sysLogger := logger.NewIsolatedLogger(cfg.App.LogFilePath)
	defer sysLogger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// The token shares the chat client's store, under its own key.
	kv, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s store: %v\n", cfg.Chat.StorageDriver, err)
		os.Exit(1)
	}
	defer kv.Close()

	client := admin.NewClient(admin.ClientOptions{
		BaseURL: cfg.Admin.APIBaseURL,
		Store:   kv,
		Logger:  sysLogger,
	})

	err = admincli.NewRunner(client, color.Output).Run(ctx, os.Args[1:])
	switch {
	case err == nil:
		return
	case errors.Is(err, admincli.ErrUsage):
		fmt.Fprintln(os.Stderr, admincli.Usage)
	case errors.Is(err, admin.ErrUnauthorized):
		color.New(color.FgRed).Fprintln(os.Stderr, "Not logged in or token expired. Run: admin login <token>")
	default:
		color.New(color.FgRed).Fprintln(os.Stderr, "error: "+err.Error())
	}
	kv.Close()
	os.Exit(1)
}
