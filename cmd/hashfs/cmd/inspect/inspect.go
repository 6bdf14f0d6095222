package inspect

import (
	"fmt"
	"os"

	"github.com/scstools/hashfs/pkg/hashfs"

	"github.com/spf13/cobra"
)

var InspectCmd = &cobra.Command{
	Use:   "inspect [archive]",
	Short: "Print summary information about a HashFS archive",
	Long:  "Print the header version, salt, and entry counts of a HashFS archive without extracting anything.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		archivePath := args[0]

		r, err := hashfs.Open(archivePath)
		if err != nil {
			fmt.Printf("Error opening %s: %s\n", archivePath, err)
			os.Exit(1)
		}
		defer r.Close()

		entries := r.Entries()
		files, dirs := 0, 0
		for _, e := range entries {
			if e.IsDirectory() {
				dirs++
			} else {
				files++
			}
		}

		fmt.Printf("archive:    %s\n", archivePath)
		fmt.Printf("version:    %d\n", r.Version())
		fmt.Printf("salt:       %d\n", r.Salt())
		fmt.Printf("files:      %d\n", files)
		fmt.Printf("directories: %d\n", dirs)
	},
}
