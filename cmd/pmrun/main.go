package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alcrishub/postman-runtime/internal/cli"
	"github.com/alcrishub/postman-runtime/internal/config"
	"github.com/alcrishub/postman-runtime/internal/mock"
	"github.com/alcrishub/postman-runtime/internal/observability"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var flagConfig string

// loadConfig prepares ~/.pmrun, reads the config file and starts the logger
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}
	v, err := config.NewViper(flagConfig)
	if err != nil {
		return nil, err
	}
	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return nil, err
	}
	if cfg.Logger.LogFile != "" {
		if cfg.Logger.LogFile, err = config.ExpandPath(cfg.Logger.LogFile); err != nil {
			return nil, err
		}
	}
	observability.InitializeLogger(cfg.Logger)
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pmrun",
		Short: "Run request collections from the command line",
		Long: `pmrun runs every request of a collection in order, resolving variables
from the command line, environment, collection, globals and vault files.

Examples:
  pmrun run api.postman_collection.json -e staging.json
  pmrun run api.json --var token=abc --item "users/create" -o json
  pmrun run api.json --filter "items[?statusCode >= ` + "`400`" + `].name"
  pmrun echo --port 8080
  pmrun history --limit 10`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.pmrun/config.yaml)")

	root.AddCommand(newRunCmd(), newEchoCmd(), newHistoryCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var opts cli.RunOptions

	cmd := &cobra.Command{
		Use:   "run <collection>",
		Short: "Execute a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts.CollectionPath = args[0]
			opts.Config = cfg
			opts.Stdout = cmd.OutOrStdout()
			opts.Logger = observability.GetLogger()

			_, err = cli.Run(cmd.Context(), opts)
			if errors.Is(err, context.Canceled) {
				opts.Logger.Info("run interrupted", zap.Error(err))
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.EnvironmentPath, "environment", "e", "", "Environment file")
	f.StringVarP(&opts.GlobalsPath, "globals", "g", "", "Globals file")
	f.StringVar(&opts.VaultPath, "vault", "", "Vault secrets file (entries may carry _domains)")
	f.StringArrayVar(&opts.Vars, "var", nil, "Set variable (key=value), can be repeated")
	f.StringArrayVarP(&opts.Items, "item", "i", nil, "Run only this item or folder, can be repeated")
	f.StringArrayVar(&opts.Cookies, "cookie", nil, "Seed the cookie jar (url=name=value; attrs), can be repeated")
	f.StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (text/json/yaml)")
	f.StringVar(&opts.Filter, "filter", "", "JMESPath expression applied to the run report")
	f.BoolVarP(&opts.ShowFull, "full", "f", false, "Include headers, bodies and traces")
	f.BoolVar(&opts.History, "history", false, "Save the run to the history database")
	f.StringVar(&opts.Protocol, "protocol", "", "Default protocol for items without one (http1/http2/auto)")
	f.DurationVar(&opts.Timeout, "timeout", 0, "Per-request timeout (overrides network.timeout)")
	f.BoolVarP(&opts.Insecure, "insecure", "k", false, "Skip TLS certificate verification")
	return cmd
}

func newEchoCmd() *cobra.Command {
	var (
		port      int
		host      string
		routeFile string
	)

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Start a local echo server for trying collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}

			cfg := &mock.Config{Host: host, Port: port, Logging: true}
			if routeFile != "" {
				loaded, err := mock.LoadConfig(routeFile)
				if err != nil {
					return err
				}
				cfg = loaded
				if cmd.Flags().Changed("port") {
					cfg.Port = port
				}
				if cmd.Flags().Changed("host") {
					cfg.Host = host
				}
			}

			server := mock.NewServer(cfg, observability.GetLogger())
			if err := server.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Echo server listening on %s (Ctrl+C to stop)\n", server.GetAddress())

			<-cmd.Context().Done()
			return server.Stop()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Address to bind")
	cmd.Flags().StringVarP(&routeFile, "routes", "r", "", "YAML or JSON file with static routes")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	opts := cli.HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List stored runs, or the items of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if opts.DatabasePath, err = config.ExpandPath(cfg.History.DatabasePath); err != nil {
				return err
			}
			if len(args) == 1 {
				opts.RunID = args[0]
			}
			opts.Stdout = cmd.OutOrStdout()
			return cli.ShowHistory(opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "Show per-request statistics")
	cmd.Flags().StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (text/json/yaml)")
	return cmd
}
