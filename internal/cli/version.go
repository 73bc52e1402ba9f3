package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zzn199216/hum2song-webui/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hum2song v%s\n", version.Version)
	},
}
