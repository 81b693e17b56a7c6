// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

// Set by the linker: -X firestige.xyz/rawsniff/cmd.version=...
var version = "dev"

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rawsniff",
	Short: "rawsniff - raw socket sniffer with L2-L4 header parsing",
	Long: `rawsniff receives link-layer frames from a raw socket, an AF_PACKET ring,
a TAP device or a capture file, parses Ethernet/VLAN, IPv4/IPv6 and TCP/UDP
headers, and hands each result to the configured sinks (console, counter, kafka).

Capturing from a live interface needs CAP_NET_RAW.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")

	rootCmd.AddCommand(newCaptureCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}
