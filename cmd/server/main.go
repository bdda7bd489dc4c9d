package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/duetlabs/duet/internal/config"
	"github.com/duetlabs/duet/internal/prompt"
	"github.com/duetlabs/duet/internal/recorder"
	"github.com/duetlabs/duet/internal/session"
	"github.com/duetlabs/duet/internal/storage"
	"github.com/duetlabs/duet/internal/turn"
	"github.com/duetlabs/duet/web/handlers"
)

func main() {
	port := flag.Int("port", 0, "Server port (default: from config)")
	dbPath := flag.String("db", "", "Database path (default: ~/.duet/duet.db)")
	cfgPath := flag.String("config", "", "Config file path (default: ~/.duet/config.yaml)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Initialize slog
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if *debug {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	// Load config
	path := *cfgPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	// Initialize storage
	slog.Info("Initializing storage", "path", cfg.Storage.Path)
	db, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	// Prompt bank
	bank := prompt.Default()
	for _, extra := range cfg.Prompts.ExtraBanks {
		if err := bank.AppendFile(extra); err != nil {
			slog.Error("Failed to load extra prompt bank", "path", extra, "error", err)
			os.Exit(1)
		}
	}

	// Session and turn flow
	store := session.New(db, db)
	store.SetPreferredKind(cfg.PreferredKind())
	store.SetStarScale(cfg.Scoring.StarScale)

	ctrl := turn.New(store, bank, recorder.NewStub(), db, turn.Options{
		CountdownFrom: cfg.Recording.CountdownSeconds,
	})
	defer ctrl.Close(context.Background())

	// Create handler and server
	h := handlers.New(store, ctrl, bank, db)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: h.Router(),
	}

	// Handle shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		slog.Info("Shutting down...")
		server.Close()
	}()

	slog.Info("Starting duet web server", "url", fmt.Sprintf("http://localhost%s", addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
