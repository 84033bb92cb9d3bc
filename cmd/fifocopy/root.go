package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jzx17/fifocopy/internal/config"
)

type rootFlags struct {
	configPath string
	capacity   int
	force      bool
	verify     bool
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:   "fifocopy [flags] PIPE DEST",
		Short: "Copy files named on a pipe into a directory",
		Long: "fifocopy reads file names, one per line, from the named pipe PIPE and copies\n" +
			"each file into the directory DEST. Type \"exit\" to stop.",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd, flags, args)
			if err != nil {
				return err
			}
			return runCopy(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	rootCmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	rootCmd.Flags().IntVar(&flags.capacity, "capacity", 0, "Number of file names that may wait to be copied")
	rootCmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Overwrite files that already exist in DEST")
	rootCmd.Flags().BoolVar(&flags.verify, "verify", false, "Verify each copy with a SHA-256 digest")
	rootCmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&flags.logFormat, "log-format", "", "Log format (console, json)")

	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// loadRunConfig layers positional arguments and explicitly set flags over
// the configuration file.
func loadRunConfig(cmd *cobra.Command, flags rootFlags, args []string) (*config.Config, error) {
	cfg, _, _, err := config.Load(strings.TrimSpace(flags.configPath))
	if err != nil {
		return nil, err
	}

	overrides := config.Overrides{
		LogLevel:  flags.logLevel,
		LogFormat: flags.logFormat,
	}
	if len(args) > 0 {
		overrides.Pipe = args[0]
	}
	if len(args) > 1 {
		overrides.Destination = args[1]
	}
	if cmd.Flags().Changed("capacity") {
		overrides.Capacity = &flags.capacity
	}
	if cmd.Flags().Changed("force") {
		overrides.Force = &flags.force
	}
	if cmd.Flags().Changed("verify") {
		overrides.Verify = &flags.verify
	}

	if err := cfg.Apply(overrides); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
