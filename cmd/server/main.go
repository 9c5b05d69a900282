package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gameforge/internal/adminlog"
	"gameforge/internal/builder"
	"gameforge/internal/games/echo"
	"gameforge/internal/games/schelling"
	"gameforge/pkg/config"
	"gameforge/pkg/logger"
)

const releaseVersion = "0.1.0"

type flags struct {
	configFile string
	host       string
	port       int
	logLevel   string
	logFormat  string
}

func main() {
	if err := newCmd(&flags{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCmd(f *flags) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GAMEFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "gameforge",
		Short:         "A pluggable real-time game-session server.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&f.configFile, "config", "", "path to a YAML config file (env: GAMEFORGE_CONFIG)")
	fs.StringVar(&f.host, "host", "", "listen host, overrides config (env: GAMEFORGE_HOST)")
	fs.IntVar(&f.port, "port", 0, "listen port, overrides config (env: GAMEFORGE_PORT)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (env: GAMEFORGE_LOG_LEVEL)")
	fs.StringVar(&f.logFormat, "log-format", "", "log encoding: console or json (env: GAMEFORGE_LOG_FORMAT)")

	fs.VisitAll(func(fl *pflag.Flag) {
		_ = v.BindPFlag(fl.Name, fl)
		_ = v.BindEnv(fl.Name)
		if !fl.Changed && v.IsSet(fl.Name) {
			_ = fs.Set(fl.Name, fmt.Sprintf("%v", v.Get(fl.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("gameforge v{{.Version}}\n")

	return cmd
}

func run(ctx context.Context, f *flags) error {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return err
	}
	if f.host != "" {
		cfg.Server.Host = f.host
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}

	logBuffer := adminlog.NewBuffer(1000)
	log, err := logger.New(cfg.Logging, logBuffer)
	if err != nil {
		return fmt.Errorf("gameforge: %w", err)
	}
	defer func() { _ = log.Sync() }()

	server, err := builder.New().
		Register("echo", echo.New).
		Register("schelling", schelling.New).
		Spawn(cfg, log, logBuffer)
	if err != nil {
		return fmt.Errorf("gameforge: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go server.Run(runCtx)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	sugar := log.Sugar()
	go func() {
		sugar.Infow("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	sugar.Infow("shutting down", "signal", sig.String())

	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), builder.ShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("forced shutdown", "error", err)
	}

	sugar.Info("stopped")
	return nil
}
