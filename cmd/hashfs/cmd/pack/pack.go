package pack

import (
	"fmt"
	"os"

	"github.com/scstools/hashfs/pkg/hashfs"

	"github.com/spf13/cobra"
)

var (
	v2       bool
	salt     int
	level    string
	checksum bool
)

var PackCmd = &cobra.Command{
	Use:   "pack [source dir] [output]",
	Short: "Pack a directory tree into a HashFS archive",
	Long:  "Pack a host directory tree, recursively, into a single HashFS archive.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		srcDir := args[0]
		out := args[1]

		version := hashfs.VersionV1
		if v2 {
			version = hashfs.VersionV2
		}

		w := hashfs.NewWriter(version,
			hashfs.WithSalt(uint16(salt)),
			hashfs.WithCompressionLevel(parseLevel(level)),
			hashfs.WithChecksums(checksum),
		)

		if err := w.AddDir(srcDir, "/"); err != nil {
			fmt.Printf("Error registering %s: %s\n", srcDir, err)
			os.Exit(1)
		}
		if err := w.SaveToPath(out); err != nil {
			fmt.Printf("Error packing %s into %s: %s\n", srcDir, out, err)
			os.Exit(1)
		}
		fmt.Printf("Successfully packed %s into %s\n", srcDir, out)
	},
}

func parseLevel(s string) hashfs.CompressionLevel {
	switch s {
	case "none":
		return hashfs.CompressionNone
	case "fast":
		return hashfs.CompressionFastest
	case "best":
		return hashfs.CompressionSmallestSize
	default:
		return hashfs.CompressionOptimal
	}
}

func init() {
	PackCmd.Flags().BoolVarP(&v2, "v2", "2", false, "Write a v2 archive instead of v1")
	PackCmd.Flags().IntVarP(&salt, "salt", "s", 0, "Path-hash salt (0 disables salting)")
	PackCmd.Flags().StringVarP(&level, "level", "L", "default", "Compression level: none|fast|default|best")
	PackCmd.Flags().BoolVarP(&checksum, "checksum", "c", false, "Compute per-entry CRC32 (v1 only)")
}
