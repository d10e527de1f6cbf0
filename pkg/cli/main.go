package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/couchconnector/pkg/config"
	"github.com/nimburion/couchconnector/pkg/connector"
	"github.com/nimburion/couchconnector/pkg/observability/logger"
	"github.com/nimburion/couchconnector/pkg/observability/metrics"
	"github.com/nimburion/couchconnector/pkg/observability/tracing"
	"github.com/nimburion/couchconnector/pkg/version"
)

// ConnectorFactory builds the connector a command operates on.
type ConnectorFactory func(cfg *config.Config, log logger.Logger) (*connector.Connector, error)

// CommandOptions configures the couchconnector command tree.
type CommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Models declares identifier fields per model; unknown models use "id".
	Models []connector.ModelDefinition

	// Optional: override connector construction (useful for tests).
	NewConnector ConnectorFactory
}

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath  string
	database    string
	url         string
	output      string
	metricsFile string
}

// NewCommand creates the CLI with document, lifecycle, design document,
// healthcheck, version and config subcommands.
func NewCommand(opts CommandOptions) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "couchconnector"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "COUCH"
	}
	if opts.NewConnector == nil {
		models := opts.Models
		opts.NewConnector = func(cfg *config.Config, log logger.Logger) (*connector.Connector, error) {
			return connector.NewFromConfig(cfg, log, models...)
		}
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := &globalFlags{}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config-file", "c", opts.ConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&flags.database, "database", "", "database name override")
	rootCmd.PersistentFlags().StringVar(&flags.url, "url", "", "server URL override")
	rootCmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "yaml", "output format (yaml, json)")
	rootCmd.PersistentFlags().StringVar(&flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when the command ends")

	rt := &runtime{opts: opts, flags: flags}

	rootCmd.AddCommand(
		newVersionCommand(opts.Name),
		newConfigCommand(rt),
		newHealthcheckCommand(rt),
		newAutoupdateCommand(rt),
		newAutomigrateCommand(rt),
		newDesignDocsCommand(rt),
		newDocCommand(rt),
		newFindCommand(rt),
	)
	return rootCmd
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
		},
	}
}

// runtime resolves configuration, logger and connector for a command run.
type runtime struct {
	opts  CommandOptions
	flags *globalFlags
}

// LoadConfigAndLogger loads configuration and builds the zap logger it
// describes. Logs go to stderr so command output stays parseable.
func LoadConfigAndLogger(cfgPath, envPrefix string, overrides *pflag.FlagSet) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewViperLoader(cfgPath, envPrefix).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg, overrides)

	logCfg, err := logger.FromObservability(cfg.Observability)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	log, err := logger.NewZapLogger(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	if strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		log.Debug("effective configuration", "config", fmt.Sprintf("%+v", cfg.Redacted()))
	}
	return cfg, log, nil
}

func applyFlagOverrides(cfg *config.Config, flags *pflag.FlagSet) {
	if flags == nil {
		return
	}
	if f := flags.Lookup("database"); f != nil && f.Changed {
		cfg.Database.Database = f.Value.String()
	}
	if f := flags.Lookup("url"); f != nil && f.Changed {
		cfg.Database.URL = f.Value.String()
	}
}

func (r *runtime) loadConfig(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	return LoadConfigAndLogger(r.flags.configPath, r.opts.EnvPrefix, cmd.Flags())
}

// withConnector runs fn with a connector that is disconnected afterwards.
// The context is cancelled on SIGINT or SIGTERM.
func (r *runtime) withConnector(cmd *cobra.Command, fn func(ctx context.Context, c *connector.Connector) error) error {
	cfg, log, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfigFrom(cfg, version.Current(r.opts.Name).Version))
	if err != nil {
		return fmt.Errorf("create tracer provider: %w", err)
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			log.Warn("failed to flush traces", "error", shutdownErr)
		}
	}()

	c, err := r.opts.NewConnector(cfg, log)
	if err != nil {
		return fmt.Errorf("create connector: %w", err)
	}
	defer func() {
		if closeErr := c.Disconnect(context.Background()); closeErr != nil {
			log.Error("failed to disconnect", "error", closeErr)
		}
	}()

	runErr := fn(ctx, c)
	if err := r.writeMetrics(); err != nil {
		log.Warn("failed to write metrics", "path", r.flags.metricsFile, "error", err)
	}
	return runErr
}

func (r *runtime) writeMetrics() error {
	if r.flags.metricsFile == "" {
		return nil
	}
	f, err := os.Create(r.flags.metricsFile)
	if err != nil {
		return err
	}
	if err := metrics.NewRegistry().WriteText(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (r *runtime) print(cmd *cobra.Command, v interface{}) error {
	return writeOutput(cmd.OutOrStdout(), r.flags.output, v)
}

func writeOutput(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format %q (supported: yaml, json)", format)
	}
}

// parseRecord decodes a JSON object given inline or as @path.
func parseRecord(raw string) (connector.Record, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("--data is required")
	}
	payload := []byte(raw)
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		payload = data
	}
	var rec connector.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("--data must be a JSON object")
	}
	return rec, nil
}
