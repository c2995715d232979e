package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"parley/internal/auth"
	"parley/internal/chat"
	"parley/internal/chatlog"
	"parley/internal/config"
	"parley/internal/credstore"
	"parley/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()
	cfg := config.LoadFromEnv()

	// A lone positional argument overrides the listen port.
	if len(os.Args) > 1 {
		if port, err := strconv.Atoi(os.Args[1]); err == nil {
			cfg.Server.Port = port
		} else {
			log.Printf("invalid port argument %q, using %d", os.Args[1], cfg.Server.Port)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Components in dependency order: durable log and credential store first,
	// then the managers, then the server that ties them together.
	chatLog := chatlog.New(cfg.Files.ChatLog)
	creds := credstore.New(cfg.Files.Credentials)
	authn := auth.New(creds)
	registry := server.NewRegistry()
	chats := chat.NewManager(chatLog, registry)
	srv := server.New(cfg, creds, authn, chats, chatLog, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalCh
	log.Printf("received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
