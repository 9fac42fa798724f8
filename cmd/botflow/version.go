package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/botflow"
	"github.com/aretw0/botflow/pkg/scheduler"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of botflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("botflow version %s (scheduler protocol v%d)\n", strings.TrimSpace(botflow.Version), scheduler.ProtocolVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
