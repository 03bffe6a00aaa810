package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"bookwatch/config"
	"bookwatch/internal/dashboard"
	"bookwatch/internal/metrics"
	"bookwatch/internal/poller"
	"bookwatch/internal/render"
	"bookwatch/internal/session"
	"bookwatch/logger"
	"bookwatch/reader/binance"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := pflag.StringP("config", "c", "", "Path to configuration file (defaults to config/config.yml or the APP_ENV specific file)")
	once := pflag.Bool("once", false, "Fetch a single snapshot, print it and exit")
	pflag.Parse()

	env := config.AppEnvironment()
	path := config.ResolvePath(*configPath)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"path": path}).Error("Failed to load configuration")
		os.Exit(1)
	}

	useDashboard := cfg.Dashboard.Enabled && !*once
	output := cfg.Logging.Output
	if useDashboard && (output == "" || output == "stdout" || output == "stderr") {
		// the terminal belongs to the dashboard; the log panel still sees entries
		output = "discard"
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Bookwatch.Name,
		"version": cfg.Bookwatch.Version,
		"env":     env,
		"config":  path,
		"symbol":  cfg.Exchange.Symbol,
	}).Info("starting bookwatch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Configure(cfg.Metrics)
	metricsServer := metrics.Init(cfg.Metrics.Listen)
	if metricsServer != nil {
		log.WithComponent("main").WithFields(logger.Fields{"listen": cfg.Metrics.Listen}).Info("prometheus exporter enabled")
	}

	if cw := cfg.Metrics.CloudWatch; cw.Enabled {
		logger.InitCloudWatch(ctx, cw.Region, cw.Namespace, cw.Dashboard)
		logger.CreateDefaultDashboard(ctx)
	}

	client := binance.NewClient(cfg.Exchange, log)
	if err := client.ValidateSymbol(ctx); err != nil {
		entry := log.WithComponent("main").WithError(err).WithFields(logger.Fields{"symbol": client.Symbol()})
		if errors.Is(err, binance.ErrDataUnavailable) || config.IsProductionLike(env) {
			entry.Error("symbol validation failed")
			os.Exit(1)
		}
		entry.Warn("symbol validation failed; continuing")
	}

	sess := session.New(client, session.Options{
		Symbol:      cfg.Exchange.Symbol,
		Depth:       cfg.Exchange.Depth,
		TradesLimit: cfg.Exchange.TradesLimit,
		Concurrent:  cfg.Refresh.Concurrent,
	}, log)

	if *once {
		os.Exit(runOnce(ctx, sess, cfg.Exchange.Depth, log))
	}

	var wg sync.WaitGroup

	p := poller.New(sess, cfg.Refresh.Interval, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	if useDashboard {
		dash, err := dashboard.New(cfg.Dashboard, sess, cfg.Exchange.Symbol, p.Trigger, log)
		if err != nil {
			log.WithError(err).Error("failed to create dashboard")
			os.Exit(1)
		}
		defer dash.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			// quitting the dashboard stops the application
			defer cancel()
			if err := dash.Run(ctx); err != nil {
				log.WithComponent("dashboard").WithError(err).Error("dashboard stopped with error")
			}
		}()
	} else {
		log.WithComponent("main").Info("dashboard disabled; running headless")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
		log.Info("dashboard closed")
	}

	log.Info("starting graceful shutdown")
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.WithComponent("metrics").WithError(err).Warn("metrics server shutdown failed")
		}
		shutdownCancel()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(10 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("bookwatch stopped")
}

// runOnce performs a single refresh and prints it. It returns the process exit
// code.
func runOnce(ctx context.Context, sess *session.Session, depth int, log *logger.Log) int {
	ok := sess.Refresh(ctx)
	if err := render.Text(os.Stdout, sess, depth); err != nil {
		log.WithError(err).Error("failed to render snapshot")
		return 1
	}
	if !ok {
		return 1
	}
	return 0
}
