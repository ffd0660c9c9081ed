// ABOUTME: Info command printing MuH5 recording metadata
// ABOUTME: Accepts a single file or a directory of recordings
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/megamicros/megamicros-go/internal/muh5"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE|DIR",
		Short: "Print MuH5 recording metadata",
		Example: `  megamicros info session.h5
  megamicros info ./recordings`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := muh5.ResolveFiles(args[0])
			if err != nil {
				return err
			}

			for i, path := range files {
				if i > 0 {
					fmt.Println()
				}
				info, err := muh5.ReadInfo(path)
				if err != nil {
					return err
				}
				printInfo(path, info)
			}
			return nil
		},
	}
}

func printInfo(path string, info muh5.Info) {
	fmt.Printf("%s\n", path)
	if info.Date != "" {
		fmt.Printf("  Date:               %s\n", info.Date)
	}
	fmt.Printf("  Sampling frequency: %.0f Hz\n", info.SamplingFrequency)
	fmt.Printf("  MEMs:               %d %v\n", len(info.Mems), info.Mems)
	fmt.Printf("  Analogs:            %d %v\n", len(info.Analogs), info.Analogs)
	fmt.Printf("  Counter:            %v (skip: %v)\n", info.Counter, info.CounterSkip)
	fmt.Printf("  Status:             %v\n", info.Status)
	fmt.Printf("  Duration:           %.2f s\n", info.Duration)
	fmt.Printf("  Datasets:           %d x %d samples\n", info.DatasetNumber, info.DatasetLength)
	fmt.Printf("  Compression:        %v\n", info.Compression)
	if info.Comment != "" {
		fmt.Printf("  Comment:            %s\n", info.Comment)
	}
}
