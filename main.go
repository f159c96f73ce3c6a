package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	lm := NewLogManager(cfg.LogLevel, cfg.LokiURL, cfg.LokiUsername, cfg.LokiPassword)

	gateway, err := NewGateway(ctx, cfg, lm)
	if err != nil {
		lm.SendLog(lm.BuildLog("Main", "GatewayInitError", logrus.ErrorLevel, nil, err))
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gateway.Close(closeCtx)
	}()

	if cfg.MetricsListen != "" {
		exporter := &PrometheusExporter{
			Path:     cfg.MetricsPath,
			Listen:   cfg.MetricsListen,
			Gatherer: gateway.Registry,
		}
		go func() {
			if err := exporter.Start(); err != nil {
				lm.SendLog(lm.BuildLog("Main", "MetricsServerError", logrus.ErrorLevel, nil, err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gateway.Start()
	}()

	select {
	case <-ctx.Done():
		lm.SendLog(lm.BuildLog("Main", "Shutdown", logrus.InfoLevel, nil))
	case err := <-errCh:
		if err != nil {
			lm.SendLog(lm.BuildLog("Main", "WebServerError", logrus.ErrorLevel, nil, err))
		}
	}
}
