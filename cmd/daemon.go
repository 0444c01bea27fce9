// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/tundra/internal/acl"
	"grimm.is/tundra/internal/audit"
	"grimm.is/tundra/internal/brand"
	"grimm.is/tundra/internal/config"
	"grimm.is/tundra/internal/ctlplane"
	"grimm.is/tundra/internal/events"
	"grimm.is/tundra/internal/health"
	"grimm.is/tundra/internal/install"
	"grimm.is/tundra/internal/logging"
	"grimm.is/tundra/internal/metrics"
	"grimm.is/tundra/internal/netcfg"
	"grimm.is/tundra/internal/netops"
	"grimm.is/tundra/internal/resolver"
	"grimm.is/tundra/internal/resolver/resolvconf"
	"grimm.is/tundra/internal/resolver/resolved"
	"grimm.is/tundra/internal/tun"

	"grimm.is/tundra/internal/api"
)

// RunDaemon runs the network configuration daemon in the foreground
// until SIGTERM or SIGINT. It owns the control socket, the device
// registry and the shared resolver state; shutdown disables every
// remaining device and restores the host DNS configuration before the
// PID file is removed.
func RunDaemon(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)

	if err := SetProcessName(brand.LowerName); err != nil {
		logger.Debug("failed to set process name", "error", err)
	}

	if err := writePIDFile(); err != nil {
		return err
	}
	defer os.Remove(install.GetPIDPath())

	logger.Info("starting", "name", brand.Name, "version", brand.Version, "pid", os.Getpid())

	backend, err := buildResolverBackend(cfg)
	if err != nil {
		return err
	}
	settings := resolver.New(backend, logger.WithComponent("resolver"))
	logger.Info("resolver backend selected", "backend", settings.BackendName())

	policy := acl.NewPolicy(cfg.Daemon.AuthorizedUIDs, *cfg.Daemon.EnforceCallerCheck)
	if !policy.Enforcing() {
		logger.Warn("caller authorization checks are DISABLED")
	}

	bus := events.NewBus()
	defer bus.Close()

	m := metrics.NewMetrics()
	promReg := prometheus.NewRegistry()
	if err := m.Register(promReg); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	journal, closeAudit, err := buildJournal(cfg, logger)
	if err != nil {
		return err
	}
	defer closeAudit()
	auditCh, cancelAudit := bus.Subscribe(256)
	defer cancelAudit()
	go journal.Consume(auditCh)
	journal.Record(audit.Event{
		Type:     audit.EventDaemonStart,
		Severity: audit.SeverityInfo,
		UID:      uint32(os.Getuid()),
		Detail:   "daemon started, version " + brand.Version,
	})

	registry := netcfg.NewRegistry(netcfg.RegistryConfig{
		Policy:     policy,
		Netlink:    netops.New(),
		Opener:     tun.OpenerFunc(tun.Open),
		Resolver:   settings,
		Bus:        bus,
		Metrics:    m,
		Logger:     logger,
		DefaultMTU: cfg.Daemon.DefaultMTU,
	})

	ctl := ctlplane.NewServer(ctlplane.ServerConfig{
		SocketPath: cfg.Daemon.SocketPath,
		SocketMode: cfg.SocketFileMode(),
		Registry:   registry,
		Policy:     policy,
		Resolver:   settings,
		Metrics:    m,
		Logger:     logger.WithComponent("ctlplane"),
		Version:    brand.Version,
	})
	if err := ctl.Listen(); err != nil {
		return err
	}
	logger.Info("control socket ready", "path", cfg.Daemon.SocketPath)

	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv = api.NewServer(api.ServerConfig{
			Listen:   cfg.API.Listen,
			Registry: registry,
			Health:   buildHealthRunner(cfg),
			Bus:      bus,
			Journal:  journal,
			Gatherer: promReg,
			Logger:   logger.WithComponent("api"),
			Version:  brand.Version,
		})
		if err := apiSrv.Start(); err != nil {
			ctl.Close()
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- ctl.Serve(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				// Config is applied at startup; a reload would have to
				// rebind the socket and swap the resolver backend under
				// live devices, so we only re-validate and report.
				if _, err := config.Load(configFile); err != nil {
					logger.Error("configuration reload check failed", "error", err)
				} else {
					logger.Info("configuration is valid; restart to apply changes")
				}
				continue
			}
			logger.Info("shutting down", "signal", sig.String())
			cancel()
			ctl.Close()
			<-serveDone

			if apiSrv != nil {
				shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
				apiSrv.Stop(shutCtx)
				shutCancel()
			}

			// Destroy remaining devices. The last teardown restores the
			// host DNS configuration.
			registry.Shutdown()

			journal.Record(audit.Event{
				Type:     audit.EventDaemonStop,
				Severity: audit.SeverityInfo,
				UID:      uint32(os.Getuid()),
				Detail:   "daemon stopped",
			})
			logger.Info("shutdown complete")
			return nil

		case err := <-serveDone:
			cancel()
			registry.Shutdown()
			if err != nil {
				return fmt.Errorf("control socket failed: %w", err)
			}
			return nil
		}
	}
}

func setupLogging(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Daemon.LogLevel)
	if err != nil {
		return nil, err
	}
	out := os.Stderr
	if cfg.Daemon.LogFile != "" {
		f, err := os.OpenFile(cfg.Daemon.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
	}
	return logging.New(logging.Config{
		Output: out,
		Level:  level,
		JSON:   cfg.Daemon.LogFormat == "json",
	}), nil
}

func writePIDFile() error {
	runDir := install.GetRunDir()
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	pidFile := install.GetPIDPath()
	if data, err := os.ReadFile(pidFile); err == nil {
		if pid, err := strconv.Atoi(string(data)); err == nil {
			if p, err := os.FindProcess(pid); err == nil {
				if err := p.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("already running (PID: %d)", pid)
				}
			}
		}
	}
	return os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func buildResolverBackend(cfg *config.Config) (resolver.Backend, error) {
	switch cfg.Resolver.Backend {
	case "resolvconf":
		path := cfg.Resolver.ResolvConfPath
		if path == "" {
			path = resolvconf.DefaultPath
		}
		return resolvconf.New(path), nil
	case "resolved":
		return resolved.New()
	case "noop":
		return resolver.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown resolver backend %q", cfg.Resolver.Backend)
	}
}

func buildJournal(cfg *config.Config, logger *logging.Logger) (*audit.Journal, func(), error) {
	auditLogger := logger.WithComponent("audit")
	if !cfg.Audit.Enabled {
		return audit.NewJournal(auditLogger, nil, nil), func() {}, nil
	}
	dbPath := cfg.AuditDBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating audit directory: %w", err)
	}
	store, err := audit.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit store: %w", err)
	}
	return audit.NewJournal(auditLogger, store, nil), func() { store.Close() }, nil
}

func buildHealthRunner(cfg *config.Config) *health.Runner {
	runner := health.NewRunner()
	runner.Register("tun", health.CheckTunDevice)
	runner.Register("control-socket", health.CheckControlSocket(cfg.Daemon.SocketPath))
	if cfg.Health.DNSProbe != "" {
		runner.Register("dns", health.CheckResolverProbe(cfg.Health.DNSProbe))
	}
	if cfg.Health.GatewayProbe != "" {
		runner.Register("gateway", health.CheckGateway(cfg.Health.GatewayProbe))
	}
	if cfg.Health.NTPServer != "" {
		runner.Register("clock", health.CheckClockSkew(cfg.Health.NTPServer))
	}
	return runner
}
