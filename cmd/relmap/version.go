// Version command for the relmap CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/relmap/pkg/relmap"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the relmap version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("relmap", relmap.Version)
	},
}
