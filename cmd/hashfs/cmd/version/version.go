package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "View hashfs's version",
	Long:  "Display the version of the hashfs tool installed on your system.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("hashfs version 0.1.0")
		return nil
	},
}
