package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pkt.systems/pslog"
	"pkt.systems/resultnav/internal/bundlestore"
	"pkt.systems/resultnav/internal/loggingutil"
	"pkt.systems/resultnav/internal/scenario"
	"pkt.systems/resultnav/internal/telemetry"
)

const envPrefix = "RESULTNAV"

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix(envPrefix+"_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "resultnav")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

// session is what a scenario command needs: a logger at the configured level,
// the bundle store and the telemetry surfaces.
type session struct {
	logger    pslog.Logger
	store     bundlestore.Store
	telemetry *telemetry.Bundle
	config    scenario.Config
}

func (s *session) Close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("cli.bundlestore.close_failed", "error", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.telemetry.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("cli.telemetry.shutdown_failed", "error", err)
	}
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "resultnav",
		Short:         "resultnav replays requester/responder navigation scenarios against a tombstone-safe result navigator",
		SilenceErrors: true,
		Example: `
  # Run every bundled scenario
  resultnav demo

  # Run one scenario file and rerun it whenever it changes
  resultnav run --watch ./scenarios/tombstone.yaml

  # Keep tombstoned bundles on disk, sealed with an ephemeral key
  resultnav demo tombstone --bundle-store disk:///tmp/resultnav --bundle-encrypt

  # Expose navigator metrics while scenarios run
  RESULTNAV_METRICS_LISTEN=127.0.0.1:9464 resultnav run --watch flow.yaml
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			_, err := loadConfigFile(v)
			return err
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file")
	persistentFlags.String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	persistentFlags.String("metrics-listen", "", "Prometheus metrics listen address (empty disables)")
	persistentFlags.Bool("runtime-metrics", false, "add Go runtime metrics to the Prometheus endpoint")
	persistentFlags.String("pprof-listen", "", "pprof listen address (empty disables)")
	persistentFlags.String("otlp-endpoint", "", "OTLP collector endpoint for navigator spans (e.g. grpc://localhost:4317)")
	persistentFlags.Duration("pending-max-age", 0, "age after which sweep steps evict undelivered outcomes (0 keeps them)")
	persistentFlags.String("bundle-store", "mem://", "tombstone bundle store URL (mem://, disk:///path, s3://host/bucket/prefix, azure://account/container)")
	persistentFlags.Bool("bundle-encrypt", false, "seal stored bundles with an ephemeral kryptograf root key")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{
		"config", "log-level", "metrics-listen", "runtime-metrics", "pprof-listen",
		"otlp-endpoint", "pending-max-age", "bundle-store", "bundle-encrypt",
	} {
		mustBindFlag(v, name, persistentFlags.Lookup(name))
	}

	open := func(cmd *cobra.Command) (*session, error) {
		return openSession(cmd.Context(), v, baseLogger)
	}
	cmd.AddCommand(newRunCommand(open))
	cmd.AddCommand(newDemoCommand(open))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func mustBindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func openSession(ctx context.Context, v *viper.Viper, baseLogger pslog.Logger) (*session, error) {
	logger := baseLogger
	if level, ok := pslog.ParseLevel(strings.TrimSpace(v.GetString("log-level"))); ok {
		logger = logger.LogLevel(level)
	}
	cliLogger := loggingutil.WithSubsystem(logger, "cli")

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		OTLPEndpoint:   v.GetString("otlp-endpoint"),
		MetricsListen:  v.GetString("metrics-listen"),
		RuntimeMetrics: v.GetBool("runtime-metrics"),
		PprofListen:    v.GetString("pprof-listen"),
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	var sealer *bundlestore.Sealer
	if v.GetBool("bundle-encrypt") {
		sealer, err = bundlestore.NewEphemeralSealer()
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, err
		}
	}
	storeURL := v.GetString("bundle-store")
	store, err := bundlestore.Open(ctx, storeURL, bundlestore.Options{Sealer: sealer, Logger: logger})
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	cliLogger.Debug("cli.session.ready", "bundle_store", storeURL, "sealed", sealer != nil, "metrics", tel.MetricsAddr())

	maxAge := v.GetDuration("pending-max-age")
	if maxAge < 0 {
		_ = store.Close()
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("--pending-max-age must be >= 0, got %s", maxAge)
	}
	return &session{
		logger:    cliLogger,
		store:     store,
		telemetry: tel,
		config: scenario.Config{
			Logger:        logger,
			Store:         store,
			PendingMaxAge: maxAge,
		},
	}, nil
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}
