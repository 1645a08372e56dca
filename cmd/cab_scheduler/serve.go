package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/cab-scheduler/internal/config"
	"github.com/jonathan/cab-scheduler/internal/server"
	"github.com/jonathan/cab-scheduler/internal/session"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start an HTTP server exposing departments, offerings, preferences and schedule generation.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT and the config file)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	if servePort != 0 {
		a.cfg.Port = servePort
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}
	jwtService, err := server.NewJWTService(jwtConfig)
	if err != nil {
		return err
	}

	store, closeStore, err := a.store(context.Background())
	if err != nil {
		return err
	}

	prefOpts, err := a.preferenceOptions()
	if err != nil {
		closeStore()
		return err
	}
	registry := session.NewRegistry(store, a.scheduler(), &session.Options{
		Preferences: prefOpts,
		Logger:      a.logger.Named("session"),
	})

	srv, err := server.New(server.Config{
		Port:      a.cfg.Port,
		Sessions:  registry,
		Offerings: a.offerings(),
		Tokens:    jwtService.AsTokenValidator(),
		Logger:    a.logger.Named("http"),
		OnStop:    closeStore,
	})
	if err != nil {
		closeStore()
		return fmt.Errorf("failed to create server: %w", err)
	}

	a.logger.Info("configured",
		zap.String("metadata_backend", a.cfg.MetadataBackend),
		zap.Strings("offering_terms", a.cfg.OfferingTerms),
		zap.String("generate_term", a.cfg.GenerateTerm),
		zap.Bool("rs256", jwtConfig.UsesPublicKey()))

	return srv.Start()
}
