// Package devices implements the capture device listing command
package devices

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/streamrecorder/internal/conf"
	"github.com/tphakala/streamrecorder/internal/recorder/malgo"
)

// Command creates the devices command
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Long:  "List the capture devices of the configured backend. Any listed index, name or id can be passed to --device.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := malgo.ParseBackend(settings.Recorder.Backend)
			if err != nil {
				return err
			}
			devices, err := malgo.ListDevices(backend)
			if err != nil {
				return err
			}
			return printDevices(cmd.OutOrStdout(), devices)
		},
	}
}

func printDevices(w io.Writer, devices []malgo.DeviceInfo) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No capture devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "INDEX\tNAME\tID\tDEFAULT")
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Index, d.Name, d.ID, def)
	}
	return tw.Flush()
}
