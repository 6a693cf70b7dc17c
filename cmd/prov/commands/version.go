package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/provenance/db"
	"github.com/teranos/provenance/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show prov version information",
	Long:  `Display version, build time, commit hash, database schema version and platform for the prov binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := db.SchemaVersion()
		if err != nil {
			return err
		}
		info := version.Get().WithSchema(schema)
		if jsonOutput {
			return printJSON(info)
		}
		fmt.Println(info.String())
		fmt.Printf("Platform: %s\n", info.Platform)
		fmt.Printf("Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	addJSONFlag(VersionCmd)
}
