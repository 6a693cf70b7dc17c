package commands

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
	"github.com/teranos/provenance/sym"
)

// ClaimCmd represents the claim command
var ClaimCmd = &cobra.Command{
	Use:   "claim",
	Short: sym.Claim + " Submit and list claims",
	Long: sym.Claim + ` claim - Submit and list claims

A claim is one candidate answer for a subject and kind. Claims are never
updated or deleted; a correction is a new claim.

Subjects are "artifact@position" for token-level kinds (reading,
lemmatization, translation) and "artifact" for edition.

Examples:
  prov claim submit P100001@o.1 reading du3 --run <run-id> --confidence 0.9
  prov claim ls P100001@o.1 reading
  prov claim show <claim-id>`,
}

var claimSubmitCmd = &cobra.Command{
	Use:   "submit <subject> <kind> <value>",
	Short: "Submit a claim under a run",
	Args:  cobra.ExactArgs(3),
	RunE:  runClaimSubmit,
}

var claimListCmd = &cobra.Command{
	Use:     "ls <subject> <kind>",
	Aliases: []string{"list"},
	Short:   "List every claim for a subject and kind",
	Args:    cobra.ExactArgs(2),
	RunE:    runClaimList,
}

var claimShowCmd = &cobra.Command{
	Use:   "show <claim-id>",
	Short: "Show one claim",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaimShow,
}

var (
	claimRunID      string
	claimConfidence float64
)

func init() {
	addJSONFlag(ClaimCmd)

	claimSubmitCmd.Flags().StringVar(&claimRunID, "run", "", "Annotation run the claim belongs to")
	claimSubmitCmd.Flags().Float64Var(&claimConfidence, "confidence", 1, "Confidence in [0,1]")
	_ = claimSubmitCmd.MarkFlagRequired("run")

	ClaimCmd.AddCommand(claimSubmitCmd)
	ClaimCmd.AddCommand(claimListCmd)
	ClaimCmd.AddCommand(claimShowCmd)
}

// parseSubjectKind reads the <subject> <kind> positional pair shared by most commands
func parseSubjectKind(subjectArg, kindArg string) (types.Subject, types.Kind, error) {
	subject, err := types.ParseSubject(subjectArg)
	if err != nil {
		return types.Subject{}, "", err
	}
	kind, err := types.ParseKind(kindArg)
	if err != nil {
		return types.Subject{}, "", err
	}
	return subject, kind, nil
}

func runClaimSubmit(cmd *cobra.Command, args []string) error {
	subject, kind, err := parseSubjectKind(args[0], args[1])
	if err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	claimID, err := e.store.SubmitClaim(cmd.Context(), types.ClaimInput{
		Subject:    subject,
		Kind:       kind,
		Value:      args[2],
		Confidence: claimConfidence,
		RunID:      claimRunID,
	})
	if err != nil {
		return err
	}

	current, err := e.store.GetConsensus(cmd.Context(), subject, kind)
	if err != nil && !errors.IsDecisionRequired(err) && !errors.IsNotFoundError(err) {
		return err
	}
	if jsonOutput {
		out := map[string]interface{}{"claim_id": claimID}
		if current != nil {
			out["consensus_claim_id"] = current.ID
		}
		return printJSON(out)
	}

	pterm.Printf("%s %s\n", pterm.LightGreen("✓ Claim submitted:"), pterm.White(claimID))
	if current != nil {
		pterm.Printf("  %s %s %s\n", pterm.Gray("→"), pterm.Gray("consensus:"), pterm.LightGreen(current.Value))
	}
	return nil
}

func runClaimList(cmd *cobra.Command, args []string) error {
	subject, kind, err := parseSubjectKind(args[0], args[1])
	if err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	claims, err := e.store.ListClaims(cmd.Context(), subject, kind)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(claims)
	}

	rows := make([][]string, 0, len(claims))
	for _, c := range claims {
		mark := ""
		if c.IsConsensus {
			mark = sym.Consensus
		}
		rows = append(rows, []string{mark, c.ID, c.Value, formatConfidence(c.Confidence), string(c.SourceType), c.AnnotationRunID, formatTime(c.CreatedAt)})
	}
	pterm.Printf("%s %s %s\n", sym.Claim, pterm.Cyan(subject.Key()), pterm.Gray(string(kind)+" ("+strconv.Itoa(len(claims))+" claims)"))
	return renderTable([]string{"", "ID", "Value", "Confidence", "Source", "Run", "Created"}, rows)
}

func runClaimShow(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	c, err := e.store.GetClaim(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(c)
	}
	pterm.Printf("%s %s\n", sym.Claim, pterm.Cyan(c.ID))
	field("subject", c.Subject.Key())
	field("kind", c.Kind)
	field("value", c.Value)
	field("confidence", formatConfidence(c.Confidence))
	field("run", c.AnnotationRunID)
	field("created", formatTime(c.CreatedAt))
	return nil
}
