package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/provenance/am"
	"github.com/teranos/provenance/cmd/prov/commands"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/logger"
)

var rootCmd = &cobra.Command{
	Use:   "prov",
	Short: "prov - Provenance and consensus resolution for annotated corpora",
	Long: `prov - Provenance and consensus resolution for annotated corpora.

Every reading, lemmatization, translation and edition link is a claim made by
an annotation run. prov keeps all claims, selects the current answer per
subject, journals every override, and deduplicates the bibliography the
claims cite.

Available commands:
  am        - Show and validate configuration
  run       - Begin, complete and inspect annotation runs
  claim     - Submit and list claims
  consensus - Read or recompute the current answer
  decision  - Record and inspect audited decisions
  evidence  - Attach and list supporting evidence
  biblio    - Identifiers, publications and editions
  dedup     - Review staged deduplication candidates
  ingest    - Batch import from a manifest
  db        - Database statistics and reset

Examples:
  prov run begin --type human --name oracc --method manual
  prov claim submit P100001@o.1 reading du3 --run <run-id> --confidence 0.9
  prov consensus get P100001@o.1 reading
  prov ingest sources.toml --dry-run`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if !cmd.Flags().Changed("log-json") {
			if cfg, err := am.Load(); err == nil {
				jsonLogs = cfg.Log.JSON
			}
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&commands.DatabasePath, "db", "", "Database path (overrides am config)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ClaimCmd)
	rootCmd.AddCommand(commands.ConsensusCmd)
	rootCmd.AddCommand(commands.DecisionCmd)
	rootCmd.AddCommand(commands.EvidenceCmd)
	rootCmd.AddCommand(commands.BiblioCmd)
	rootCmd.AddCommand(commands.DedupCmd)
	rootCmd.AddCommand(commands.IngestCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
