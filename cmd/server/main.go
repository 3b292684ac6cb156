package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/fiber-thresholds/internal/centering"
	"github.com/Brownie44l1/fiber-thresholds/internal/config"
	"github.com/Brownie44l1/fiber-thresholds/internal/field"
	"github.com/Brownie44l1/fiber-thresholds/internal/handlers"
	"github.com/Brownie44l1/fiber-thresholds/internal/model"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	logger, err := config.InitLogger(os.Stderr, cfg.Logging)
	if err != nil {
		return err
	}

	strategy, err := centering.ParseStrategy(cfg.Server.Centering)
	if err != nil {
		return err
	}
	conductivity, err := field.ParseConductivity(cfg.Server.Conductivity)
	if err != nil {
		return err
	}
	mode, err := model.ParseMode(cfg.Server.Mode)
	if err != nil {
		return err
	}

	logger.Info("loading electrode field", "path", cfg.Server.ElectrodeFile)
	fld, err := field.ReadFile(cfg.Server.ElectrodeFile)
	if err != nil {
		return err
	}
	sampler, err := field.NewSampler(fld, conductivity)
	if err != nil {
		return err
	}

	modelDir := model.Dir(cfg.Server.ModelDir, cfg.Server.TractType, mode)
	logger.Info("loading model", "dir", modelDir)
	m, err := model.Load(cfg.Server.ModelDir, cfg.Server.TractType, mode, model.LoadOptions{
		ORTLibraryPath: cfg.Runtime.ORTLibraryPath,
		BatchSize:      cfg.Pipeline.BatchSize,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	handler := handlers.NewHandler(m, sampler, strategy, cfg.Pipeline.Workers, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handlers.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	meta := m.Metadata()
	logger.Info("server starting",
		"port", cfg.Server.Port,
		"tract_type", meta.TractType,
		"mode", mode.String(),
		"backend", string(meta.Backend),
		"pulse_widths", len(m.PulseWidths()),
		"centering", strategy.String(),
		"conductivity", conductivity.String())
	logger.Info("endpoints",
		"health", "GET /health",
		"model", "GET /model",
		"predict", "POST /predict",
		"predict_tract", "POST /predict/tract")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		return err
	}
	return nil
}
