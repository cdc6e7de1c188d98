// Command gatewayd runs a gateway topology described by a configuration
// file until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lattice-run/gatewayrt/internal/glog"
	"github.com/lattice-run/gatewayrt/public/gateway"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "gatewayd runs a pluggable-module gateway topology",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)
	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	glog.Init(glog.Config{Level: glog.Level(level), JSONOutput: jsonOutput})
}

var runCmd = &cobra.Command{
	Use:   "run CONFIG",
	Short: "Build a topology from a configuration file and run it until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		top, err := gateway.Load(path)
		if err != nil {
			return fmt.Errorf("load topology: %w", err)
		}

		top.AddEventCallback(gateway.EventModuleListChanged, func(ev gateway.Event, _ interface{}) {
			glog.Logger.Info().Str("module", ev.Subject).Msg("module list changed")
		}, nil)

		if err := top.Start(); err != nil {
			top.Destroy()
			return fmt.Errorf("start topology: %w", err)
		}
		glog.Logger.Info().Str("config", path).Msg("topology running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		glog.Logger.Info().Msg("shutting down")
		if err := top.Destroy(); err != nil {
			return fmt.Errorf("destroy topology: %w", err)
		}
		return nil
	},
}
