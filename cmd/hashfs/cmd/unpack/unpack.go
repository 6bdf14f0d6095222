package unpack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/scstools/hashfs/pkg/hashfs"

	"github.com/spf13/cobra"
)

var forceEnd bool

var UnpackCmd = &cobra.Command{
	Use:   "unpack [archive] [output dir]",
	Short: "Unpack a HashFS archive to an output directory",
	Long:  "Unpack every file entry in a HashFS archive to an output directory, recreating its directory structure.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		archivePath := args[0]
		outDir := args[1]

		var opts []hashfs.ReaderOption
		if forceEnd {
			opts = append(opts, hashfs.WithForceEntryTableAtEnd())
		}

		r, err := hashfs.Open(archivePath, opts...)
		if err != nil {
			fmt.Printf("Error opening %s: %s\n", archivePath, err)
			os.Exit(1)
		}
		defer r.Close()

		if err := unpackDir(r, "/", outDir); err != nil {
			fmt.Printf("Error unpacking archive %s: %s\n", archivePath, err)
			os.Exit(1)
		}
		fmt.Printf("Successfully unpacked archive %s to directory %s\n", archivePath, outDir)
	},
}

func unpackDir(r *hashfs.ReaderFacade, archiveDir, hostDir string) error {
	listing, err := r.GetDirectoryListing(archiveDir, false, true)
	if err != nil {
		return fmt.Errorf("listing %s: %w", archiveDir, err)
	}
	if err := os.MkdirAll(hostDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", hostDir, err)
	}

	for _, entry := range listing {
		leaf := filepath.Base(entry.Path)
		hostPath := filepath.Join(hostDir, leaf)
		if entry.IsDir {
			if err := unpackDir(r, entry.Path, hostPath); err != nil {
				return err
			}
			continue
		}
		if err := r.ExtractToFile(entry.Path, hostPath); err != nil {
			return fmt.Errorf("extracting %s: %w", entry.Path, err)
		}
	}
	return nil
}

func init() {
	UnpackCmd.Flags().BoolVar(&forceEnd, "force-entry-table-at-end", false, "Ignore the header's startOffset and locate the v1 entry table at fileLength - numEntries*32")
}
