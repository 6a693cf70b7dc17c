package commands

import (
	"encoding/json"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
	"github.com/teranos/provenance/sym"
)

// RunCmd represents the run (annotation run registry) command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Run + " Manage annotation runs",
	Long: sym.Run + ` run - Manage annotation runs

Every claim belongs to exactly one annotation run recording who or what
produced it. Runs are immutable once begun.

Examples:
  prov run begin --type human --name oracc --method manual
  prov run begin --type model --name lemmatizer --method bert --config '{"epochs":3}'
  prov run complete <run-id> --rows 1200
  prov run show <run-id>
  prov run ls --limit 20`,
}

var runBeginCmd = &cobra.Command{
	Use:   "begin",
	Short: "Register a new annotation run",
	Args:  cobra.NoArgs,
	RunE:  runRunBegin,
}

var runCompleteCmd = &cobra.Command{
	Use:   "complete <run-id>",
	Short: "Stamp a run as completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunComplete,
}

var runShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one annotation run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunShow,
}

var runListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List recent annotation runs",
	Args:    cobra.NoArgs,
	RunE:    runRunList,
}

var (
	runSourceType    string
	runSourceName    string
	runMethod        string
	runScholarID     string
	runPublicationID string
	runConfigJSON    string
	runRowCount      int
	runListLimit     int
)

func init() {
	addJSONFlag(RunCmd)

	runBeginCmd.Flags().StringVar(&runSourceType, "type", "", "Source type: human, model, hybrid, import")
	runBeginCmd.Flags().StringVar(&runSourceName, "name", "", "Source name (project, model or catalog)")
	runBeginCmd.Flags().StringVar(&runMethod, "method", "", "How the claims were produced")
	runBeginCmd.Flags().StringVar(&runScholarID, "scholar", "", "Responsible scholar id")
	runBeginCmd.Flags().StringVar(&runPublicationID, "publication", "", "Publication the run transcribes")
	runBeginCmd.Flags().StringVar(&runConfigJSON, "config", "", "Run configuration as a JSON object")
	_ = runBeginCmd.MarkFlagRequired("type")
	_ = runBeginCmd.MarkFlagRequired("name")
	_ = runBeginCmd.MarkFlagRequired("method")

	runCompleteCmd.Flags().IntVar(&runRowCount, "rows", -1, "Row count to record (-1 keeps the running tally)")
	runListCmd.Flags().IntVar(&runListLimit, "limit", 20, "Maximum runs to show")

	RunCmd.AddCommand(runBeginCmd)
	RunCmd.AddCommand(runCompleteCmd)
	RunCmd.AddCommand(runShowCmd)
	RunCmd.AddCommand(runListCmd)
}

func runRunBegin(cmd *cobra.Command, args []string) error {
	spec := types.RunSpec{
		SourceType:    types.SourceType(runSourceType),
		SourceName:    runSourceName,
		Method:        runMethod,
		ScholarID:     runScholarID,
		PublicationID: runPublicationID,
	}
	if runConfigJSON != "" {
		if err := json.Unmarshal([]byte(runConfigJSON), &spec.Config); err != nil {
			return errors.NewValidationError("--config must be a JSON object: %v", err)
		}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	runID, err := e.store.BeginRun(cmd.Context(), spec)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]string{"run_id": runID})
	}
	pterm.Printf("%s %s\n", pterm.LightGreen("✓ Run begun:"), pterm.White(runID))
	return nil
}

func runRunComplete(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.store.CompleteRun(cmd.Context(), args[0], runRowCount); err != nil {
		return err
	}
	pterm.Success.Printf("Run %s completed\n", args[0])
	return nil
}

func runRunShow(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	run, err := e.store.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(run)
	}

	pterm.Printf("%s %s\n", sym.Run, pterm.Cyan(run.ID))
	field("source", string(run.SourceType)+"/"+run.SourceName)
	field("method", run.Method)
	field("scholar", orDash(run.ScholarID))
	field("publication", orDash(run.PublicationID))
	field("created", formatTime(run.CreatedAt))
	if run.CompletedAt != nil {
		field("completed", formatTime(*run.CompletedAt))
	} else {
		field("completed", pterm.Yellow("open"))
	}
	field("rows", run.RowCount)
	if len(run.ConfigSnapshot) > 0 {
		field("config", string(run.ConfigSnapshot))
	}
	return nil
}

func runRunList(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	runs, err := e.store.ListRuns(cmd.Context(), runListLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(runs)
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		completed := "open"
		if r.CompletedAt != nil {
			completed = formatTime(*r.CompletedAt)
		}
		rows = append(rows, []string{r.ID, string(r.SourceType), r.SourceName, r.Method, strconv.Itoa(r.RowCount), formatTime(r.CreatedAt), completed})
	}
	return renderTable([]string{"ID", "Type", "Source", "Method", "Rows", "Created", "Completed"}, rows)
}
