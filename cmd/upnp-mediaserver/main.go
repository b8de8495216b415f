// Upnp-mediaserver publishes content stores as a UPnP MediaServer:1 device.
//
// It answers SSDP discovery, serves device and service descriptions, runs
// ContentDirectory and ConnectionManager actions over SOAP and delivers
// GENA events. Content comes from backends declared in the configuration
// file; without one, an in-memory library is served, optionally seeded
// from a YAML fixture.
//
// Usage:
//
//	upnp-mediaserver serve [flags]
//	upnp-mediaserver log <view|stats|export|filter> [flags] <file>
//
// See 'upnp-mediaserver <command> --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/upnp-media/upnp-go/pkg/backend"
	_ "github.com/upnp-media/upnp-go/pkg/backend/memory"
	"github.com/upnp-media/upnp-go/pkg/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "upnp-mediaserver",
	Short: "UPnP/DLNA media server",
	Long: `A UPnP AV MediaServer:1 exposing one or more content backends to
control points on the local network.

Protocol traffic can be captured with --protocol-log and analysed later
with the log subcommands.`,
	Version:       version.ProductVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(logCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (UPnP/%s)\n", version.Product, version.ProductVersion, version.Current)
	},
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the available backend kinds",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range backend.Kinds() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}
