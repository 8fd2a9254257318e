package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gonzalop/ftpd/config"
	"github.com/gonzalop/ftpd/internal/logging"
	"github.com/gonzalop/ftpd/metrics"
	"github.com/gonzalop/ftpd/server"
)

type serveOptions struct {
	configPath  string
	root        string
	addr        string
	logLevel    string
	logFormat   string
	metricsAddr string
}

func (o *serveOptions) addFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&o.configPath, "config", "c", config.DefaultFileName, "Configuration file; created with defaults if missing")
	flags.StringVarP(&o.root, "root", "r", "", "Server root directory (overrides root_dir)")
	flags.StringVar(&o.addr, "addr", "", "Listen address host:port (overrides host and port)")
	flags.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.StringVar(&o.logFormat, "log-format", "json", "Log format: json or console")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the FTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
	opts.addFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	logger, err := logging.New(logging.Config{Level: opts.logLevel, Format: opts.logFormat})
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadOrCreate(opts.configPath)
	if err != nil {
		return err
	}

	root := cfg.RootDir
	if opts.root != "" {
		root = opts.root
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.Wrapf(err, "creating root %s", root)
	}
	addr := cfg.Addr()
	if opts.addr != "" {
		addr = opts.addr
	}

	serverOpts := serverOptions(cfg, root, logger)
	var metricsHandler http.Handler
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		serverOpts = append(serverOpts, server.WithMetricsCollector(metrics.NewCollector(reg)))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	srv, err := server.NewServer(addr, serverOpts...)
	if err != nil {
		return errors.Wrap(err, "creating server")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return srv.Shutdown()
	})

	if metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		hs := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", opts.metricsAddr))
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// serverOptions maps the loaded configuration onto server options.
func serverOptions(cfg *config.ServerConfig, root string, logger *zap.Logger) []server.Option {
	opts := []server.Option{
		server.WithConfig(cfg),
		server.WithRoot(root),
		server.WithLogger(logger),
		server.WithProtectedFile(cfg.ProtectedFile),
		server.WithMaxIdleTime(cfg.IdleTimeout),
		server.WithPassiveTimeout(cfg.PassiveAcceptTimeout),
		server.WithMaxConnections(cfg.MaxConnections),
		server.WithBandwidthLimit(cfg.BandwidthLimit),
		server.WithASCIITranslation(cfg.ASCIITranslation),
	}
	if cfg.PublicHost != "" {
		opts = append(opts, server.WithPublicHost(cfg.PublicHost))
	}
	if cfg.PassivePortMin > 0 {
		opts = append(opts, server.WithPassivePortRange(cfg.PassivePortMin, cfg.PassivePortMax))
	}
	return opts
}
