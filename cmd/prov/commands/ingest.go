package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/provenance/ingest"
	"github.com/teranos/provenance/logger"
	"github.com/teranos/provenance/metrics"
	"github.com/teranos/provenance/sym"
)

// IngestCmd represents the ingest (batch import) command
var IngestCmd = &cobra.Command{
	Use:   "ingest <manifest>",
	Short: sym.Ingest + " Import sources listed in a manifest",
	Long: sym.Ingest + ` ingest - Import sources listed in a manifest

A manifest (TOML or YAML) lists sources. Each source begins one annotation run
and names JSONL files per stage, imported in order:

  identifiers -> publications -> claims -> editions -> evidence -> consensus

Every batch commits together with its checkpoint, so an interrupted import
resumes where it stopped. Row errors are reported, not fatal.

Examples:
  prov ingest sources.toml
  prov ingest sources.toml --dry-run
  prov ingest sources.toml --from claims
  prov ingest sources.toml --reset --metrics-file /var/lib/node_exporter/prov.prom`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var (
	ingestReset       bool
	ingestDryRun      bool
	ingestFrom        string
	ingestMetricsFile string
	ingestShowErrors  int
)

func init() {
	addJSONFlag(IngestCmd)
	IngestCmd.Flags().BoolVar(&ingestReset, "reset", false, "Delete all engine state before importing")
	IngestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Validate every row without writing")
	IngestCmd.Flags().StringVar(&ingestFrom, "from", "", "Skip stages before this one")
	IngestCmd.Flags().StringVar(&ingestMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")
	IngestCmd.Flags().IntVar(&ingestShowErrors, "show-errors", 10, "Row errors to print per stage")
}

func runIngest(cmd *cobra.Command, args []string) error {
	opts := ingest.Options{Reset: ingestReset, DryRun: ingestDryRun}
	if ingestFrom != "" {
		stage, err := ingest.ParseStage(ingestFrom)
		if err != nil {
			return err
		}
		opts.From = stage
	}

	manifest, err := ingest.LoadManifest(args[0])
	if err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	runner := ingest.NewRunner(e.resolver, e.cfg.Ingest, logger.ComponentLogger("ingest"))

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Importing %d source(s)...", len(manifest.Sources)))
	report, err := runner.Run(cmd.Context(), manifest, opts)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("Import finished")

	if ingestMetricsFile != "" {
		if err := metrics.WriteTextfile(ingestMetricsFile); err != nil {
			return err
		}
	}

	if jsonOutput {
		return printJSON(report)
	}
	return printIngestReport(report)
}

func printIngestReport(report *ingest.Report) error {
	if report.DryRun {
		pterm.Info.Println("Dry run: nothing was written")
	}

	rows := make([][]string, 0, len(report.Stages))
	for _, s := range report.Stages {
		rows = append(rows, []string{
			s.Source,
			string(s.Stage),
			strconv.Itoa(s.Processed),
			strconv.Itoa(s.Inserted),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Failed),
		})
	}
	if err := renderTable([]string{"Source", "Stage", "Processed", "Inserted", "Skipped", "Errors"}, rows); err != nil {
		return err
	}

	totals := report.Totals()
	for _, stage := range ingest.Stages {
		if t, ok := totals[stage]; ok {
			pterm.Printf("%s %s %d/%d inserted, %d errors\n", pterm.Gray("total"), pterm.Cyan(string(stage)), t.Inserted, t.Processed, t.Failed)
		}
	}

	for _, s := range report.Stages {
		for i, rowErr := range s.Errors {
			if i == ingestShowErrors {
				pterm.Printf("  %s\n", pterm.Gray(fmt.Sprintf("... %d more", len(s.Errors)-i)))
				break
			}
			pterm.Printf("  %s %s %s %s\n",
				pterm.Red("✗"),
				pterm.Yellow(fmt.Sprintf("%s/%s row %d", s.Source, s.Stage, rowErr.Row)),
				pterm.Gray("["+rowErr.Category+"]"),
				rowErr.Message)
		}
	}

	if !report.DryRun {
		pterm.Printf("%s %s %d\n", sym.Consensus, pterm.Gray("consensus changed:"), report.ConsensusChanged)
	}
	pterm.Printf("%s %s\n", pterm.Gray("elapsed:"), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return nil
}
