package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hexfury/graphport/internal/config"
	"github.com/hexfury/graphport/internal/observability"
)

// NewRootCommand builds the root command and its own viper instance, so
// parallel invocations in tests never share configuration state.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	var cfgFile string
	rootCmd := &cobra.Command{
		Use:   "graphport",
		Short: "graphport moves labeled property graphs in and out of GraphML.",
		Long: `graphport imports GraphML documents into a graph store and exports the
store back to GraphML, preserving labels, relationship types and typed
properties. Supported backends: memory, postgres and neo4j.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any subcommand, setting up config and logging.
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}
			observability.GetLogger().Debug("starting graphport", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.graphport.yaml)")
	rootCmd.PersistentFlags().String("driver", "", "Graph store driver: memory, postgres or neo4j. (Overrides config/env)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error. (Overrides config/env)")
	cobra.CheckErr(v.BindPFlag("database.driver", rootCmd.PersistentFlags().Lookup("driver")))
	cobra.CheckErr(v.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level")))
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newImportCmd(v))
	rootCmd.AddCommand(newExportCmd(v))

	return rootCmd
}

// Execute runs the CLI under the given signal-aware context.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// initializeConfig reads in the config file and environment variables, then
// installs the resulting configuration and logger.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".graphport")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GRAPHPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found; defaults and env vars carry the day.
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	config.Set(cfg)
	observability.InitializeLogger(cfg.Logger)
	return nil
}
