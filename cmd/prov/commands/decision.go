package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
	"github.com/teranos/provenance/sym"
)

// DecisionCmd represents the decision (audit log) command
var DecisionCmd = &cobra.Command{
	Use:   "decision",
	Short: sym.Decide + " Record and inspect audited decisions",
	Long: sym.Decide + ` decision - Record and inspect audited decisions

Decisions are append-only. Each new decision supersedes the active one, and
the history of a subject is never rewritten.

Without --base the active decision is read first and used as the base. Pass
--base explicitly (or --base "" for "none yet") to fail with a conflict when
someone else decided in between.

Examples:
  prov decision record P100001@o.1 reading <claim-id> --by "J. Editor" --rationale "collated"
  prov decision history P100001@o.1 reading
  prov decision show <decision-id>`,
}

var decisionRecordCmd = &cobra.Command{
	Use:   "record <subject> <kind> <claim-id>",
	Short: "Choose the current claim for a subject",
	Args:  cobra.ExactArgs(3),
	RunE:  runDecisionRecord,
}

var decisionHistoryCmd = &cobra.Command{
	Use:   "history <subject> <kind>",
	Short: "Show the decision chain, oldest first",
	Args:  cobra.ExactArgs(2),
	RunE:  runDecisionHistory,
}

var decisionShowCmd = &cobra.Command{
	Use:   "show <decision-id>",
	Short: "Show one decision",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecisionShow,
}

var (
	decisionBy        string
	decisionMethod    string
	decisionRationale string
	decisionBase      string
)

func init() {
	addJSONFlag(DecisionCmd)

	decisionRecordCmd.Flags().StringVar(&decisionBy, "by", "", "Who decided")
	decisionRecordCmd.Flags().StringVar(&decisionMethod, "method", string(types.MethodEditorial), "editorial, vote, algorithm or import_default")
	decisionRecordCmd.Flags().StringVar(&decisionRationale, "rationale", "", "Why this claim was chosen")
	decisionRecordCmd.Flags().StringVar(&decisionBase, "base", "", "Active decision id this decision replaces")
	_ = decisionRecordCmd.MarkFlagRequired("by")

	DecisionCmd.AddCommand(decisionRecordCmd)
	DecisionCmd.AddCommand(decisionHistoryCmd)
	DecisionCmd.AddCommand(decisionShowCmd)
}

func runDecisionRecord(cmd *cobra.Command, args []string) error {
	subject, kind, err := parseSubjectKind(args[0], args[1])
	if err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	base := decisionBase
	if !cmd.Flags().Changed("base") {
		active, err := e.store.GetActiveDecision(cmd.Context(), subject, kind)
		switch {
		case err == nil:
			base = active.ID
		case !errors.IsNotFoundError(err):
			return err
		}
	}

	decisionID, err := e.store.RecordDecision(cmd.Context(), types.DecisionRequest{
		Subject:        subject,
		Kind:           kind,
		ChosenClaimID:  args[2],
		DecidedBy:      decisionBy,
		Method:         types.DecisionMethod(decisionMethod),
		Rationale:      decisionRationale,
		BaseDecisionID: base,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]string{"decision_id": decisionID})
	}
	pterm.Printf("%s %s\n", pterm.LightGreen("✓ Decision recorded:"), pterm.White(decisionID))
	if base != "" {
		pterm.Printf("  %s %s %s\n", pterm.Gray("→"), pterm.Gray("supersedes"), pterm.LightMagenta(base))
	}
	return nil
}

func runDecisionHistory(cmd *cobra.Command, args []string) error {
	subject, kind, err := parseSubjectKind(args[0], args[1])
	if err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	history, err := e.store.GetHistory(cmd.Context(), subject, kind)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(history)
	}

	rows := make([][]string, 0, len(history))
	for i, d := range history {
		mark := ""
		if i == len(history)-1 {
			mark = sym.Decide
		}
		rows = append(rows, []string{mark, d.ID, d.ChosenClaimID, d.DecidedBy, string(d.Method), formatTime(d.CreatedAt), d.Rationale})
	}
	pterm.Printf("%s %s %s\n", sym.Decide, pterm.Cyan(subject.Key()), pterm.Gray(string(kind)))
	return renderTable([]string{"", "ID", "Claim", "By", "Method", "Created", "Rationale"}, rows)
}

func runDecisionShow(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	d, err := e.store.GetDecision(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(d)
	}
	pterm.Printf("%s %s\n", sym.Decide, pterm.Cyan(d.ID))
	field("subject", d.Subject.Key())
	field("kind", d.Kind)
	field("claim", d.ChosenClaimID)
	field("by", d.DecidedBy)
	field("method", d.Method)
	field("rationale", orDash(d.Rationale))
	field("supersedes", orDash(d.SupersedesID))
	field("created", formatTime(d.CreatedAt))
	return nil
}
