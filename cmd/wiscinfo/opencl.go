package main

import (
	"fmt"

	cl "github.com/CyberChainXyz/go-opencl"
	"github.com/spf13/cobra"
)

// The OpenCL probe is a cross-check: drivers sometimes expose devices
// through OpenCL that the WebGPU runtime does not surface (or the other
// way around), and comparing the two lists is the quickest way to tell a
// driver problem from a wisc enumeration problem.
var openclCmd = &cobra.Command{
	Use:   "opencl",
	Short: "Probe OpenCL platforms for comparison with the device list",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := cl.Info()
		if err != nil {
			return fmt.Errorf("opencl probe: %w", err)
		}
		if info.Platform_count == 0 {
			fmt.Println("no OpenCL platforms found")
			return nil
		}

		fmt.Printf("%d OpenCL platform(s)\n", info.Platform_count)
		total := 0
		for i, p := range info.Platforms {
			fmt.Printf("  platform %d: %d device(s)\n", i, len(p.Devices))
			total += len(p.Devices)
		}
		fmt.Printf("%d OpenCL device(s) total\n", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openclCmd)
}
