// Package cli provides the Cobra command line interface.
//
// Command structure:
//
//	webserver                  # root command
//	├── run                    # start the HTTP job server
//	│   └── --config, -c       # config file path
//	├── routes                 # list the HTTP endpoints
//	├── --version
//	└── --help
//
// Configuration uses a YAML file (default: configs/default.yaml) with
// server, worker and metrics sections. The run command loads the
// config, ingests the dataset, starts the worker pool and HTTP server,
// then waits for SIGINT/SIGTERM or a graceful_shutdown request before
// stopping everything in order.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/le-stats-sportif/webserver/internal/ingest"
	"github.com/le-stats-sportif/webserver/internal/logging"
	"github.com/le-stats-sportif/webserver/internal/metrics"
	"github.com/le-stats-sportif/webserver/internal/pool"
	"github.com/le-stats-sportif/webserver/internal/results"
	"github.com/le-stats-sportif/webserver/internal/server"
	"github.com/le-stats-sportif/webserver/internal/stats"
)

// Config maps the YAML config file.
type Config struct {
	Server struct {
		Addr        string `yaml:"addr"`
		DatasetPath string `yaml:"dataset_path"`
		ResultsDir  string `yaml:"results_dir"`
		LogFile     string `yaml:"log_file"`
	} `yaml:"server"`

	Worker struct {
		Count int `yaml:"count"`
	} `yaml:"worker"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// applyDefaults fills the fields the config file may omit. A worker
// count of zero defers to TP_NUM_OF_THREADS and the hardware.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if c.Server.DatasetPath == "" {
		c.Server.DatasetPath = "nutrition_activity_obesity_usa_subset.csv"
	}
	if c.Server.ResultsDir == "" {
		c.Server.ResultsDir = "results"
	}
	if c.Server.LogFile == "" {
		c.Server.LogFile = "webserver.log"
	}
	if c.Metrics.Enabled && c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
}

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "webserver",
		Short: "Le Stats Sportif: an HTTP job server for health statistics",
		Long: `Le Stats Sportif serves statistical analyses over a nutrition,
activity and obesity survey dataset. Requests are executed
asynchronously by a worker pool; results are persisted per job and
polled over HTTP.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildRoutesCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the job server",
		Long:  "Load the dataset, start the worker pool and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config file")

	return cmd
}

func runServer(addrOverride string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}
	cfg.applyDefaults()

	log, err := logging.New(cfg.Server.LogFile)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer log.Close()

	dataset, err := ingest.Load(cfg.Server.DatasetPath)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	log.Printf("loaded dataset from %s: %d entries, %d rows skipped",
		cfg.Server.DatasetPath, len(dataset.Entries), dataset.Skipped)

	store, err := results.New(cfg.Server.ResultsDir)
	if err != nil {
		return fmt.Errorf("failed to prepare results directory: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		go func() {
			log.Printf("metrics listening on :%d", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Printf("ERROR - metrics server: %v", err)
			}
		}()
	}

	p := pool.New(pool.Config{
		Workers:    cfg.Worker.Count,
		Store:      store,
		Dispatcher: stats.NewDispatcher(dataset),
		Log:        log,
		Metrics:    collector,
	})
	if err := p.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(p, store, log).Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("listening on %s with %d workers", cfg.Server.Addr, p.WorkerCount())
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-errChan:
		p.Shutdown()
		return fmt.Errorf("http server failed: %w", err)
	}

	p.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	log.Printf("server stopped")
	return nil
}

func buildRoutesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the HTTP routes",
		Long:  "Print the method and path of every endpoint the server registers",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, route := range server.Routes() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s\n", route.Method, route.Path)
			}
			return nil
		},
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &cfg, nil
}
