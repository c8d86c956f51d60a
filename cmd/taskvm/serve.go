package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/taskvm/taskvm"
	"github.com/taskvm/taskvm/internal/config"
	"github.com/taskvm/taskvm/internal/logging"
	"github.com/taskvm/taskvm/internal/scheduler"
	"github.com/taskvm/taskvm/internal/server"
	"github.com/taskvm/taskvm/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task server",
	Long: `Run the HTTP API that queues programs, runs them on a worker pool and
stores their results.

Settings are read from the file given with --config (TOML), then from
TASKVM_* environment variables and finally from flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadServeConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, os.Stderr, nil)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("config", "", "Path to a taskvm.toml file")
	flags.String("addr", "", "Listen address")
	flags.Int("workers", 0, "Number of workers")
	flags.String("db", "", "Database URL (memory:, sqlite:<path> or postgres://...)")
	flags.String("db-driver", "", "Database driver (memory, sqlite or postgres), used with --db-dsn")
	flags.String("db-dsn", "", "Database data source name, used with --db-driver")
	flags.String("log-level", "", "Log level")
	flags.Bool("log-pretty", false, "Human readable logs")
	for _, name := range []string{"config", "addr", "workers", "db", "db-driver", "db-dsn", "log-level", "log-pretty"} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
	rootCmd.AddCommand(serveCmd)
}

// loadServeConfig layers explicitly set viper keys over the config file.
func loadServeConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := viper.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if viper.IsSet("addr") {
		cfg.Server.Addr = viper.GetString("addr")
	}
	if viper.IsSet("workers") {
		cfg.Scheduler.Workers = viper.GetInt("workers")
	}
	if viper.IsSet("step-limit") {
		cfg.Scheduler.StepLimit = viper.GetInt64("step-limit")
	}
	if viper.IsSet("db") {
		cfg.Store.URL = viper.GetString("db")
	} else if viper.IsSet("db-driver") || viper.IsSet("db-dsn") {
		url, err := storeURL(viper.GetString("db-driver"), viper.GetString("db-dsn"))
		if err != nil {
			return nil, err
		}
		cfg.Store.URL = url
	}
	if viper.IsSet("log-level") {
		cfg.Log.Level = viper.GetString("log-level")
	}
	if viper.IsSet("log-pretty") {
		cfg.Log.Pretty = viper.GetBool("log-pretty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// storeURL turns a driver name and data source name into a database URL.
func storeURL(driver, dsn string) (string, error) {
	switch driver {
	case "memory":
		return "memory:", nil
	case "sqlite", "sqlite3":
		if dsn == "" {
			return "", errors.New("--db-dsn is required for sqlite")
		}
		return "sqlite:" + dsn, nil
	case "postgres", "pgx":
		if dsn == "" {
			return "", errors.New("--db-dsn is required for postgres")
		}
		return dsn, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// serve runs until ctx is cancelled. When ready is not nil it receives the
// listening address.
func serve(ctx context.Context, cfg *config.Config, logw io.Writer, ready chan<- string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pretty := cfg.Log.Pretty
	if f, ok := logw.(*os.File); ok && !viper.IsSet("log-pretty") && isTerminal(f) {
		pretty = true
	}
	logger, err := logging.New(cfg.Log.Level, pretty, logw)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.Store.URL)
	if err != nil {
		return err
	}
	sched := scheduler.New(st, scheduler.Config{
		Workers:   cfg.Scheduler.Workers,
		QueueSize: cfg.Scheduler.QueueSize,
		StepLimit: cfg.Scheduler.StepLimit,
		Timeout:   cfg.Scheduler.Timeout.Duration,
	}, logger)
	sched.Start()
	api := server.New(sched, st, logger,
		taskvm.WithStepLimit(cfg.Scheduler.StepLimit),
		taskvm.WithTimeout(cfg.Scheduler.Timeout.Duration))

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return multierror.Append(fmt.Errorf("listen: %w", err), sched.Stop(ctx), st.Close()).ErrorOrNil()
	}
	httpServer := &http.Server{
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().Str("addr", listener.Addr().String()).Str("store", cfg.Store.URL).Msg("listening")
	if ready != nil {
		ready <- listener.Addr().String()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()

	var result *multierror.Error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = multierror.Append(result, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	api.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := st.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close store: %w", err))
	}
	logger.Info().Msg("server stopped")
	return result.ErrorOrNil()
}
