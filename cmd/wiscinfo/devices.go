package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/amirreiter/wisc"
	"github.com/amirreiter/wisc/gpudev"
)

var requestMappable bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List usable compute devices and their workgroup weights",
	RunE: func(cmd *cobra.Command, args []string) error {
		var requested gpudev.Features
		if requestMappable {
			requested = gpudev.FeatureMappablePrimaryBuffers
		}

		devices := wisc.Devices(requested, 0)
		if len(devices) == 0 {
			fmt.Println("no usable compute devices found")
			return nil
		}

		wg, err := wisc.NewWorkgroup(devices)
		if err != nil {
			return err
		}
		defer wg.Close()

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LABEL\tNAME\tTYPE\tBACKEND\tWEIGHT\tMAX BUFFER\tMAPPABLE")
		weights := wg.Weights()
		for i, d := range wg.Devices() {
			info := d.Info()
			limits := d.Limits()
			mappable := d.Features().Contains(gpudev.FeatureMappablePrimaryBuffers)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.3f\t%d MiB\t%v\n",
				d.Label(), info.Name, info.DeviceType, info.Backend,
				weights[i], limits.MaxBufferSize>>20, mappable)
		}
		return w.Flush()
	},
}

func init() {
	devicesCmd.Flags().BoolVar(&requestMappable, "mappable", false,
		"request mappable primary buffers where available")
	rootCmd.AddCommand(devicesCmd)
}
