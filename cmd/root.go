// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twinport",
	Short: "twinport - dual-port SPI Ethernet switch data plane",
	Long: `twinport is the data-plane core of a dual-port Ethernet switch peripheral
reached over a serial command/data channel. It frames packets for transfer
across that channel, maintains a MAC learning table so the two physical
ports can exchange traffic without host involvement, and keeps all blocking
transport work on dedicated workers.

Commands:
  start    run the data plane (against the built-in chip simulator)
  inject   craft an Ethernet frame and send it into a simulator port`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (empty = built-in defaults)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(injectCmd)
}
