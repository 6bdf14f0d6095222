package main

import (
	inspect "github.com/scstools/hashfs/cmd/hashfs/cmd/inspect"
	pack "github.com/scstools/hashfs/cmd/hashfs/cmd/pack"
	unpack "github.com/scstools/hashfs/cmd/hashfs/cmd/unpack"
	version "github.com/scstools/hashfs/cmd/hashfs/cmd/version"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hashfs",
	Short: "HashFS archive utility",
	Long:  "hashfs reads and writes v1/v2 HashFS game archives.",
}

func main() {
	rootCmd.AddCommand(pack.PackCmd)
	rootCmd.AddCommand(unpack.UnpackCmd)
	rootCmd.AddCommand(inspect.InspectCmd)
	rootCmd.AddCommand(version.VersionCmd)
	rootCmd.Execute()
}
