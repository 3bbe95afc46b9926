package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shehabattia96/carry-sound/internal/device"
)

// listDevices is replaced in tests
var listDevices = device.List

// printDevices writes the device table for --list-devices
func printDevices(w io.Writer) error {
	devices, err := listDevices()
	if err != nil {
		return fmt.Errorf("failed to list audio devices: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tHOST API\tINPUTS\tOUTPUTS\tDEFAULT RATE")
	for _, d := range devices {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%.0f\n",
			d.Index, d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}
	return tw.Flush()
}
