package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/containerd/log"

	"github.com/spin-stack/vrouter-vif/internal/api"
	"github.com/spin-stack/vrouter-vif/internal/config"
	"github.com/spin-stack/vrouter-vif/internal/driver"
	"github.com/spin-stack/vrouter-vif/internal/host/link"
	"github.com/spin-stack/vrouter-vif/internal/host/namespace"
	"github.com/spin-stack/vrouter-vif/internal/runtime/docker"
	"github.com/spin-stack/vrouter-vif/internal/store"
	"github.com/spin-stack/vrouter-vif/internal/version"
	"github.com/spin-stack/vrouter-vif/internal/vrouter"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var (
		configFile string
		debug      bool
		showVer    bool
	)
	flag.StringVar(&configFile, "config", "", "Path to configuration file (overrides "+config.ConfigEnvVar+")")
	flag.BoolVar(&debug, "debug", false, "Debug log level")
	flag.BoolVar(&showVer, "version", false, "Print version and exit")
	flag.Parse()

	if showVer {
		fmt.Println(version.Info())
		return
	}

	if configFile != "" {
		os.Setenv(config.ConfigEnvVar, configFile)
	}

	// Load configuration first - fail fast if config is missing or invalid
	cfg, err := config.Get()
	if err != nil {
		log.L.WithError(err).Error("failed to load vifd configuration")
		fmt.Fprintln(os.Stderr, "\nPlease create a configuration file at "+config.DefaultConfigPath)
		fmt.Fprintln(os.Stderr, "\nAlternatively, set "+config.ConfigEnvVar+" or pass -config to specify a custom config file location.")
		os.Exit(1)
	}

	if err := setupLogging(cfg.Log, debug); err != nil {
		log.L.WithError(err).Error("failed to configure logging")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.L.WithError(err).Error("vifd exited with error")
		os.Exit(1)
	}
}

func setupLogging(cfg config.LogConfig, debug bool) error {
	level := cfg.Level
	if debug {
		level = "debug"
	}
	if err := log.SetLevel(level); err != nil {
		return err
	}
	format := log.TextFormat
	if cfg.Format == "json" {
		format = log.JSONFormat
	}
	return log.SetFormat(format)
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := docker.New(docker.Config{
		HostURL:    cfg.Docker.HostURL,
		Insecure:   cfg.Docker.Insecure,
		CAFile:     cfg.Docker.CAFile,
		CertFile:   cfg.Docker.CertFile,
		KeyFile:    cfg.Docker.KeyFile,
		Privileged: cfg.Docker.PrivilegedExec,
	})
	if err != nil {
		return fmt.Errorf("create docker runtime: %w", err)
	}
	defer rt.Close()

	ports, err := vrouter.NewHTTPClient(vrouter.Config{
		AgentURL: cfg.VRouter.AgentURL,
		Timeout:  cfg.VRouter.GetRequestTimeout(),
	})
	if err != nil {
		return fmt.Errorf("create vrouter client: %w", err)
	}

	links, err := link.NewOperator()
	if err != nil {
		return fmt.Errorf("create link operator: %w", err)
	}

	journal, err := store.NewBoltStore[driver.Attachment](filepath.Join(cfg.Paths.StateDir, "attachments.db"), "attachments")
	if err != nil {
		return fmt.Errorf("open attachment journal: %w", err)
	}
	defer journal.Close()

	d, err := driver.New(driver.Options{
		Links:       links,
		Namespaces:  namespace.NewResolver(cfg.Paths.NetnsDir, rt),
		Runtime:     rt,
		Ports:       ports,
		Journal:     journal,
		SettleDelay: cfg.Attach.GetSettleDelay(),
		DHCPClient:  cfg.Attach.DHCPClient,
	})
	if err != nil {
		return fmt.Errorf("create driver: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.New(d).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.G(ctx).WithFields(version.Fields()).Info("starting vifd")

	errCh := make(chan error, 1)
	go func() {
		log.G(ctx).WithFields(log.Fields{
			"listen": cfg.Server.Listen,
			"agent":  cfg.VRouter.AgentURL,
			"docker": cfg.Docker.HostURL,
		}).Info("vifd listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.G(ctx).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
