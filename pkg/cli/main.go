// Package cli assembles the standard service command tree.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/stratoci/healer/pkg/config"
	"github.com/stratoci/healer/pkg/observability/logger"
	"github.com/stratoci/healer/pkg/version"
)

// ServiceCommandOptions defines callbacks for service-specific logic.
type ServiceCommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Required: server startup logic.
	RunServer func(ctx context.Context, cfg *config.Config, log logger.Logger) error

	// Optional: dependency connectivity checks for the healthcheck command.
	CheckDependencies func(ctx context.Context, cfg *config.Config, log logger.Logger) error

	// Optional: custom validation run after the built-in config validation.
	ValidateConfig func(cfg *config.Config) error

	// Optional: additional custom commands.
	CustomCommands []*cobra.Command
}

// NewServiceCommand creates a CLI with serve, version, healthcheck and config
// subcommands. Running the root command starts the server.
func NewServiceCommand(opts ServiceCommandOptions) *cobra.Command {
	if strings.TrimSpace(opts.EnvPrefix) == "" {
		opts.EnvPrefix = "HEALER"
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("environment", "", "deployment environment override")

	loadConfig := func(flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(cfgPath, opts.EnvPrefix, opts.ValidateConfig, flags)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(opts.Name)
			fmt.Printf("Service:    %s\n", info.Service)
			fmt.Printf("Version:    %s\n", info.Version)
			fmt.Printf("Commit:     %s\n", info.Commit)
			fmt.Printf("Build Time: %s\n", info.BuildTime)
		},
	})

	if opts.RunServer != nil {
		serveCmd := &cobra.Command{
			Use:   "serve",
			Short: "Start the healing dispatch service",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := loadConfig(cmd.Flags())
				if err != nil {
					return err
				}
				return opts.RunServer(cmd.Context(), cfg, log)
			},
		}
		rootCmd.AddCommand(serveCmd)
		rootCmd.RunE = serveCmd.RunE
	}

	if opts.CheckDependencies != nil {
		rootCmd.AddCommand(&cobra.Command{
			Use:   "healthcheck",
			Short: "Check connectivity to dependencies",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := loadConfig(cmd.Flags())
				if err != nil {
					return err
				}
				return opts.CheckDependencies(cmd.Context(), cfg, log)
			},
		})
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			rendered, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			cmd.Println(string(rendered))
			return nil
		},
	})
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(opts.CustomCommands...)

	return rootCmd
}

// LoadConfigAndLogger loads and validates the configuration, then builds the
// service logger from its logging section. flags may carry overrides that
// win over environment and file values.
func LoadConfigAndLogger(
	cfgPath string,
	envPrefix string,
	validate func(cfg *config.Config) error,
	flags *pflag.FlagSet,
) (*config.Config, logger.Logger, error) {
	loader := config.NewViperLoader(cfgPath, envPrefix)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg, flags)
	if err := loader.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}
	if validate != nil {
		if err := validate(cfg); err != nil {
			return nil, nil, fmt.Errorf("validate config: %w", err)
		}
	}

	level, err := logger.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	return cfg, log, nil
}

func applyFlagOverrides(cfg *config.Config, flags *pflag.FlagSet) {
	if cfg == nil || flags == nil {
		return
	}
	if flags.Changed("log-level") {
		if value, err := flags.GetString("log-level"); err == nil && strings.TrimSpace(value) != "" {
			cfg.Logging.Level = strings.TrimSpace(value)
		}
	}
	if flags.Changed("environment") {
		if value, err := flags.GetString("environment"); err == nil && strings.TrimSpace(value) != "" {
			cfg.Service.Environment = strings.TrimSpace(value)
		}
	}
}
