package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"liftctl/config"
)

// errExit ends the process with status 1 once the command has already
// told the user what went wrong.
var errExit = errors.New("exit")

var (
	configPath string
	envFile    string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "liftctl",
	Short: "Elevator dispatch system",
	Long: `liftctl runs the parts of an elevator system: the dispatch controller,
one process per car, the safety monitor of a car, the manual control tool
and the call client riders use to request a car.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// glog reads its settings from the standard flag set
		flag.CommandLine.Parse([]string{})

		var err error
		cfg, err = config.Load(config.Sources{
			File:         configPath,
			FileRequired: cmd.Flags().Changed("config"),
			EnvFile:      envFile,
		})
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		return nil
	},
}

func init() {
	flag.Set("logtostderr", "true")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFile, "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "file with LIFTCTL_* environment overrides")

	rootCmd.AddCommand(controllerCmd, carCmd, safetyCmd, internalCmd, callCmd)
}

func main() {
	err := rootCmd.Execute()
	glog.Flush()
	if err != nil {
		if !errors.Is(err, errExit) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
