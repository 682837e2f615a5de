package cli

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"erp-rules/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	LogLevel   string
}

// NewRootCommand creates the root command for rulectl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rulectl",
		Short: "Business rule engine tooling",
		Long: `Run hook points and rules offline against rule files, validate rule
definitions, manage the catalog schema, and mint development tokens.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(opts.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
			}
			log.SetLevel(level)
			// stdout carries command output
			log.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default: app.yaml lookup)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level")

	cmd.AddCommand(NewRunHookCommand(opts))
	cmd.AddCommand(NewExecRuleCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// loadConfig reads the server configuration the same way the server does.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.ConfigFile != "" {
		return config.LoadFile(o.ConfigFile)
	}
	return config.Load()
}
