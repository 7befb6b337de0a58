package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jluzny/hag-ex"
	"github.com/jluzny/hag-ex/internal/api"
	"github.com/jluzny/hag-ex/internal/auth"
	"github.com/jluzny/hag-ex/internal/config"
	"github.com/jluzny/hag-ex/internal/controller"
	"github.com/jluzny/hag-ex/internal/logger"
	"github.com/jluzny/hag-ex/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var startCmd = cobra.Command{
	Use:   "start",
	Short: "run the controller until interrupted",
	RunE:  runStart,
}

func runStart(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.Get(logger.InfoLevel).Named("hag")

	ctrl := controller.New(cfg, log, prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	controllerErrCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		controllerErrCh <- ctrl.Run(ctx)
	}()

	var apiSrv *server.Server
	if cfg.Api.Enabled {
		apiSrv = &server.Server{}
		handler := buildApiHandler(cfg, ctrl, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiSrv.Run(cfg.Api.Addr, handler.InitRoutes()); err != nil {
				log.Errorw("control api stopped", "err", err)
			}
		}()
	}

	var ctrlErr error
	var ctrlErrReceived bool
	select {
	case <-ctx.Done():
		log.Infow("shutting down")
	case ctrlErr = <-controllerErrCh:
		ctrlErrReceived = true
		log.Errorw("controller stopped unexpectedly", "err", ctrlErr)
		stop()
	}

	if apiSrv != nil {
		_ = apiSrv.Shutdown(context.Background())
	}
	wg.Wait()

	if !ctrlErrReceived {
		ctrlErr = <-controllerErrCh
	}
	if ctrlErr != nil && !errors.Is(ctrlErr, context.Canceled) {
		if errors.Is(ctrlErr, hagex.ErrAuthInvalid) || errors.Is(ctrlErr, hagex.ErrConfigInvalid) {
			return fmt.Errorf("controller stopped fatally: %w", ctrlErr)
		}
		log.Errorw("controller stopped with error", "err", ctrlErr)
	}
	return nil
}

func buildApiHandler(cfg *hagex.Config, ctrl *controller.Controller, log *logger.Logger) *api.Handler {
	var authSvc *auth.Service
	if cfg.Api.ControlSecret != "" {
		signingKey := []byte(cfg.Api.ControlSecret)
		svc, err := auth.New(cfg.Api.ControlSecret, signingKey)
		if err != nil {
			log.Errorw("control auth disabled", "err", err)
		} else {
			authSvc = svc
		}
	}
	return api.NewHandler(ctrl, authSvc, log)
}
