package main

import (
	"github.com/spf13/cobra"

	"github.com/upnp-media/upnp-go/cmd/upnp-mediaserver/commands"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect protocol capture files",
	Long: `Inspect files written with serve --protocol-log.

Each capture holds one CBOR record per SSDP datagram, SOAP action, GENA
request or notification, subscription change and protocol error.`,
}

// Log command flags.
var (
	viewProtocol  string
	viewDirection string
	viewCategory  string

	exportFormat string
	exportOutput string

	filterOpts commands.FilterOptions
)

var logViewCmd = &cobra.Command{
	Use:   "view <file>",
	Short: "View a capture in human-readable form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter commands.ViewFilter
		if viewProtocol != "" {
			p, err := commands.ParseProtocol(viewProtocol)
			if err != nil {
				return err
			}
			filter.Protocol = &p
		}
		if viewDirection != "" {
			d, err := commands.ParseDirection(viewDirection)
			if err != nil {
				return err
			}
			filter.Direction = &d
		}
		if viewCategory != "" {
			c, err := commands.ParseCategory(viewCategory)
			if err != nil {
				return err
			}
			filter.Category = &c
		}
		return commands.RunView(args[0], filter, cmd.OutOrStdout())
	},
}

var logStatsCmd = &cobra.Command{
	Use:   "stats <file>",
	Short: "Summarise a capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunStats(args[0], cmd.OutOrStdout())
	},
}

var logExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export a capture to JSON lines or CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunExport(args[0], exportFormat, exportOutput)
	},
}

var logFilterCmd = &cobra.Command{
	Use:   "filter <file>",
	Short: "Write the matching events to a new capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunFilter(args[0], filterOpts, cmd.OutOrStdout())
	},
}

func init() {
	logCmd.AddCommand(logViewCmd, logStatsCmd, logExportCmd, logFilterCmd)

	v := logViewCmd.Flags()
	v.StringVar(&viewProtocol, "protocol", "", "Filter by protocol (ssdp, soap, gena, http)")
	v.StringVar(&viewDirection, "direction", "", "Filter by direction (in, out)")
	v.StringVar(&viewCategory, "category", "", "Filter by category (message, state, error)")

	e := logExportCmd.Flags()
	e.StringVar(&exportFormat, "format", "jsonl", "Output format (jsonl, csv)")
	e.StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")

	f := logFilterCmd.Flags()
	f.StringVarP(&filterOpts.Output, "output", "o", "", "Output capture file (required)")
	f.StringVar(&filterOpts.ExchangeID, "exchange-id", "", "Keep one request/response exchange")
	f.StringVar(&filterOpts.UDN, "udn", "", "Keep events of one device")
	f.StringVar(&filterOpts.SID, "sid", "", "Keep GENA events of one subscription")
	f.StringVar(&filterOpts.TimeStart, "time-start", "", "Keep events at or after this RFC 3339 time")
	f.StringVar(&filterOpts.TimeEnd, "time-end", "", "Keep events before this RFC 3339 time")
	f.StringVar(&filterOpts.Protocol, "protocol", "", "Filter by protocol (ssdp, soap, gena, http)")
	f.StringVar(&filterOpts.Direction, "direction", "", "Filter by direction (in, out)")
	f.StringVar(&filterOpts.Category, "category", "", "Filter by category (message, state, error)")
	_ = logFilterCmd.MarkFlagRequired("output")
}
