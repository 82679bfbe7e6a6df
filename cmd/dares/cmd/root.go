package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tsarna/dares/pkg/dares/api"
	"github.com/tsarna/dares/pkg/dares/config"
	"github.com/tsarna/dares/pkg/dares/session"
	"go.uber.org/zap"
)

var (
	verbose     bool
	debug       bool
	logLevel    string
	configPaths []string
	envFiles    []string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dares",
	Short: "Command line client for the dares service",
	Long: `dares talks to a dares server: it follows the realtime event stream,
pages through notifications and manages the local login session.

Settings come from HCL config files (--config), dotenv files (--env-file)
and the environment. VITE_WS_URL overrides the realtime endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error); defaults to the config file's log block")
	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", nil, "config files or directories")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default ./.env if present)")
}

// environment is what every subcommand starts from.
type environment struct {
	logger *zap.Logger
	config *config.Config
}

func setup() (*environment, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	sources := make([]any, len(configPaths))
	for i, path := range configPaths {
		sources[i] = path
	}

	cfg, diags := config.NewConfig().WithSources(sources...).Build()
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to load config: %w", diags)
	}

	level := logLevel
	if level == "" {
		level = cfg.Log.Level
	}

	logger, err := setupLogger(level, verbose, debug)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	logger.Debug("Configuration loaded",
		zap.Strings("config-paths", configPaths),
		zap.String("api", cfg.API.BaseURL),
		zap.String("refresh-mode", cfg.Refresh.Mode))

	return &environment{logger: logger, config: cfg}, nil
}

func setupLogger(level string, verboseFlag, debugFlag bool) (*zap.Logger, error) {
	if debugFlag {
		level = "debug"
	} else if verboseFlag && (level == "" || level == "info") {
		level = "debug"
	}

	var zapLevel zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn", "warning":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config := zap.NewProductionConfig()
	config.Level = zapLevel
	config.Development = debugFlag

	return config.Build()
}

func (e *environment) sessionStore() (*session.FileStore, error) {
	return session.NewFileStore(e.config.Session.Path, e.logger)
}

func (e *environment) apiClient(store *session.FileStore) (*api.Client, error) {
	builder := api.NewClient().
		WithBaseURL(e.config.API.BaseURL).
		WithTimeout(e.config.API.Timeout).
		WithLogger(e.logger)
	if store != nil {
		builder = builder.WithTokenSource(store.Token)
	}
	return builder.Build()
}
