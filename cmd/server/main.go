package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/action"
	"github.com/t77yq/hostwatch/internal/config"
	"github.com/t77yq/hostwatch/internal/executor"
	"github.com/t77yq/hostwatch/internal/model"
	"github.com/t77yq/hostwatch/internal/monitor"
	"github.com/t77yq/hostwatch/internal/notify"
	"github.com/t77yq/hostwatch/internal/probe"
	"github.com/t77yq/hostwatch/internal/remote"
	"github.com/t77yq/hostwatch/internal/scheduler"
	"github.com/t77yq/hostwatch/internal/storage"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load("./config")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Connect to NATS with more options
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATS.URLs[0], opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	channel, err := notify.NewNATSChannel(js, logger)
	if err != nil {
		logger.Fatal("Failed to create notification channel", zap.Error(err))
	}

	// Alert history storage
	history, err := storage.NewSQLiteAlertHistory(logger, cfg.Monitor.HistoryPath)
	if err != nil {
		logger.Fatal("Failed to create alert history storage", zap.Error(err))
	}
	defer history.Close()

	// Docker client is shared by the docker probe and the restart executor.
	var dockerCli *dockerclient.Client
	if cfg.Docker.Enabled {
		dockerCli, err = dockerclient.NewClientWithOpts(
			dockerclient.FromEnv,
			dockerclient.WithAPIVersionNegotiation(),
		)
		if err != nil {
			logger.Fatal("Failed to create docker client", zap.Error(err))
		}
		defer dockerCli.Close()
	}

	var hostExec *executor.HostExecutor
	if dockerCli != nil {
		hostExec = executor.NewHostExecutor(logger, dockerCli)
	} else {
		hostExec = executor.NewHostExecutor(logger, nil)
	}

	store := action.NewStore(logger, cfg.Actions.Retention, cfg.Actions.MaxPending)
	protocol := action.NewProtocol(logger, store, hostExec, cfg.Actions.AllowedRoots)
	engine := monitor.NewEngine(logger)

	// Assemble probes from the enabled sections.
	var (
		probes      []probe.Probe
		diskProbe   *probe.DiskProbe
		systemProbe *probe.SystemProbe
	)

	if cfg.Disk.Enabled {
		diskProbe = probe.NewDiskProbe(logger, diskConfig(cfg))
		probes = append(probes, diskProbe)
	}

	if cfg.System.Enabled {
		systemProbe = probe.NewSystemProbe(logger, systemPolicies(cfg))
		probes = append(probes, systemProbe)
	}

	if cfg.Docker.Enabled {
		probes = append(probes, probe.NewDockerProbe(logger, dockerCli,
			model.Policy{Threshold: 1, Cooldown: cfg.Monitor.Cooldown},
			cfg.Docker.Ignore))
	}

	if cfg.Remote.Enabled {
		runner, err := remote.NewSSHRunner(logger,
			cfg.Remote.Host, cfg.Remote.Port, cfg.Remote.User, cfg.Remote.KeyPath)
		if err != nil {
			logger.Fatal("Failed to create SSH runner", zap.Error(err))
		}
		probes = append(probes, probe.NewRemoteDiskProbe(logger, runner,
			cfg.Remote.Name, cfg.Remote.Path,
			model.Policy{
				Threshold:      cfg.Remote.Threshold,
				Cooldown:       cfg.Monitor.Cooldown,
				ReportBaseline: cfg.Monitor.ReportBaseline,
			}))
	}

	if len(probes) == 0 {
		logger.Fatal("No probes enabled; nothing to watch")
	}

	driver := scheduler.NewDriver(logger, probes, engine, protocol, store, channel, history,
		scheduler.DriverOptions{
			Interval:         cfg.Monitor.Interval,
			ProbeTimeout:     cfg.Monitor.ProbeTimeout,
			HistoryRetention: cfg.Monitor.HistoryRetention,
		})

	// Thresholds and scan filters follow the config file without a restart.
	config.Watch(logger, func(next *config.Config) {
		if diskProbe != nil {
			diskProbe.SetConfig(diskConfig(next))
		}
		if systemProbe != nil {
			systemProbe.SetPolicies(systemPolicies(next))
		}
		logger.Info("Applied updated probe configuration")
	})

	// Metrics endpoint
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("Metrics listening", zap.String("addr", cfg.Metrics.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := driver.Start(ctx); err != nil {
		logger.Fatal("Failed to start driver", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	driver.Stop(shutdownCtx)
	channel.Close()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
}

func diskConfig(cfg *config.Config) probe.DiskConfig {
	return probe.DiskConfig{
		Mount: cfg.Disk.Mount,
		Policy: model.Policy{
			Threshold:      cfg.Disk.Threshold,
			Cooldown:       cfg.Monitor.Cooldown,
			ReportBaseline: cfg.Monitor.ReportBaseline,
		},
		DownloadsPath: cfg.Disk.DownloadsPath,
		MinEntrySize:  cfg.Disk.MinEntrySize,
		Exclude:       cfg.Disk.Exclude,
	}
}

func systemPolicies(cfg *config.Config) probe.SystemPolicies {
	cooldown := cfg.Monitor.Cooldown
	return probe.SystemPolicies{
		RAM:  model.Policy{Threshold: cfg.System.RAMThreshold, Cooldown: cooldown},
		Swap: model.Policy{Threshold: cfg.System.SwapThreshold, Cooldown: cooldown},
		Load: model.Policy{Threshold: cfg.System.LoadThreshold, Cooldown: cooldown},
	}
}
