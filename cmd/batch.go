package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/hanzo/internal/output"
	"github.com/tanq16/hanzo/internal/utils"
)

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Download every link listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := utils.ReadDownloadList(args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Error reading download list: %v", err))
				os.Exit(1)
			}
			for i := range entries {
				if entries[i].OutputPath == "" {
					entries[i].OutputPath = utils.InferOutputPath(entries[i].URL)
				}
				if _, err := os.Stat(entries[i].OutputPath); err == nil && !entries[i].Resume {
					entries[i].OutputPath = utils.RenewOutputPath(entries[i].OutputPath)
				}
			}
			if err := runDownloads(entries); err != nil {
				fmt.Println()
				output.PrintError("Encountered failed operation(s)")
				os.Exit(1)
			}
		},
	}
}
