package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
	"github.com/teranos/provenance/sym"
)

// EvidenceCmd represents the evidence command
var EvidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: sym.Evidence + " Attach and list supporting evidence",
	Long: sym.Evidence + ` evidence - Attach and list supporting evidence

Evidence supports exactly one claim, decision or edition.

Examples:
  prov evidence attach --claim <claim-id> --type collation --ref "BM 12345 obv. 3" --by "J. Editor"
  prov evidence ls --decision <decision-id>`,
}

var evidenceAttachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach evidence to one target",
	Args:  cobra.NoArgs,
	RunE:  runEvidenceAttach,
}

var evidenceListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List evidence for one target",
	Args:    cobra.NoArgs,
	RunE:    runEvidenceList,
}

var (
	evidenceTarget types.EvidenceTarget
	evidenceType   string
	evidenceRef    string
	evidenceBy     string
	evidenceNote   string
)

func init() {
	addJSONFlag(EvidenceCmd)

	for _, c := range []*cobra.Command{evidenceAttachCmd, evidenceListCmd} {
		c.Flags().StringVar(&evidenceTarget.ClaimID, "claim", "", "Target claim id")
		c.Flags().StringVar(&evidenceTarget.DecisionID, "decision", "", "Target decision id")
		c.Flags().StringVar(&evidenceTarget.EditionID, "edition", "", "Target edition id")
		c.MarkFlagsMutuallyExclusive("claim", "decision", "edition")
		c.MarkFlagsOneRequired("claim", "decision", "edition")
	}
	evidenceAttachCmd.Flags().StringVar(&evidenceType, "type", "", "Evidence type (collation, photo, citation, ...)")
	evidenceAttachCmd.Flags().StringVar(&evidenceRef, "ref", "", "Reference to the evidence")
	evidenceAttachCmd.Flags().StringVar(&evidenceBy, "by", "", "Who attached it")
	evidenceAttachCmd.Flags().StringVar(&evidenceNote, "note", "", "Free-text note")
	_ = evidenceAttachCmd.MarkFlagRequired("type")
	_ = evidenceAttachCmd.MarkFlagRequired("ref")
	_ = evidenceAttachCmd.MarkFlagRequired("by")

	EvidenceCmd.AddCommand(evidenceAttachCmd)
	EvidenceCmd.AddCommand(evidenceListCmd)
}

func runEvidenceAttach(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.store.AttachEvidence(cmd.Context(), types.EvidenceInput{
		Target:       evidenceTarget,
		EvidenceType: evidenceType,
		EvidenceRef:  evidenceRef,
		AddedBy:      evidenceBy,
		Note:         evidenceNote,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]string{"evidence_id": id})
	}
	kind, target, _ := evidenceTarget.Resolve()
	pterm.Printf("%s %s %s %s\n", pterm.LightGreen("✓ Evidence attached:"), pterm.White(id), pterm.Gray("→ "+string(kind)), pterm.LightMagenta(target))
	return nil
}

func runEvidenceList(cmd *cobra.Command, args []string) error {
	if evidenceTarget.Arity() != 1 {
		return errors.NewValidationError("exactly one of --claim, --decision, --edition is required")
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	items, err := e.store.ListEvidence(cmd.Context(), evidenceTarget)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(items)
	}

	rows := make([][]string, 0, len(items))
	for _, ev := range items {
		rows = append(rows, []string{ev.ID, ev.EvidenceType, ev.EvidenceRef, ev.AddedBy, formatTime(ev.CreatedAt), ev.Note})
	}
	return renderTable([]string{"ID", "Type", "Ref", "By", "Created", "Note"}, rows)
}
