package commands

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/provenance/db"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the prov database",
	Long: sym.DB + ` db - Manage the prov database

Examples:
  prov db stats                   # Row counts per engine table
  prov db reset --yes             # Wipe all engine state, keep the schema`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per engine table",
	RunE:  runDbStats,
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all engine state",
	Long:  "Delete every run, claim, decision, evidence row and bibliographic record. The schema and migration history are kept.",
	RunE:  runDbReset,
}

var resetConfirmed bool

func init() {
	addJSONFlag(DbCmd)
	dbResetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "Confirm the reset")

	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbResetCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	counts, err := e.store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(counts)
	}

	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Table, strconv.FormatInt(c.Rows, 10)})
	}
	fmt.Printf("\n%s Database: %s\n", sym.DB, e.cfg.GetDatabasePath())
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	return renderTable([]string{"Table", "Rows"}, rows)
}

func runDbReset(cmd *cobra.Command, args []string) error {
	if !resetConfirmed {
		return errors.WithHint(errors.New("reset not confirmed"), "pass --yes to delete all engine state")
	}
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := db.Reset(cmd.Context(), e.db); err != nil {
		return err
	}
	pterm.Success.Println("Engine state cleared")
	return nil
}
