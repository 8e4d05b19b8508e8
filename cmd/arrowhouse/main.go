package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowhouse/pkg/chclient"
	"github.com/ajitpratap0/arrowhouse/pkg/config"
	"github.com/ajitpratap0/arrowhouse/pkg/logger"
	"github.com/ajitpratap0/arrowhouse/pkg/observability"
)

var version = "0.1.0"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	logLevel   string
	cfg        *config.Config
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "arrowhouse",
		Short: "Arrowhouse - move Arrow dataframes in and out of ClickHouse",
		Long: `Arrowhouse maps dataframe schemas to ClickHouse tables and transcodes
columns between Arrow IPC files and the ClickHouse native protocol.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = observability.Shutdown(context.Background())
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Arrowhouse v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(
		newSchemaCommand(g),
		newCreateCommand(g),
		newLoadCommand(g),
		newDumpCommand(g),
		newDescribeCommand(g),
		newConfigCommand(g),
	)
	return root
}

func (g *globalFlags) setup() error {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = version
	}
	if err := observability.InitTracing(cfg.Tracing); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	g.cfg = cfg
	logger.Debug("configuration loaded", zap.String("config", g.configFile))
	return nil
}

// connect opens a client and hands it to fn, closing it afterwards.
func (g *globalFlags) connect(ctx context.Context, fn func(c *chclient.Client) error) error {
	client, err := chclient.Open(ctx, g.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close connection", zap.Error(err))
		}
	}()
	return fn(client)
}
