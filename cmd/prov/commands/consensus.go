package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
	"github.com/teranos/provenance/sym"
)

// ConsensusCmd represents the consensus command
var ConsensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: sym.Consensus + " Read or recompute the current answer",
	Long: sym.Consensus + ` consensus - Read or recompute the current answer

The current answer for a subject is the claim chosen by the active decision
or, without one, the best-ranked claim by source type, confidence and age.

Examples:
  prov consensus get P100001@o.1 reading      # Materialized answer
  prov consensus select P100001@o.1 reading   # Compute without writing
  prov consensus recompute                    # Re-materialize every subject`,
}

var consensusGetCmd = &cobra.Command{
	Use:   "get <subject> <kind>",
	Short: "Show the materialized current claim",
	Args:  cobra.ExactArgs(2),
	RunE:  runConsensusGet,
}

var consensusSelectCmd = &cobra.Command{
	Use:   "select <subject> <kind>",
	Short: "Compute the current claim without writing",
	Args:  cobra.ExactArgs(2),
	RunE:  runConsensusSelect,
}

var consensusRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Re-materialize consensus for every subject",
	Args:  cobra.NoArgs,
	RunE:  runConsensusRecompute,
}

func init() {
	addJSONFlag(ConsensusCmd)

	ConsensusCmd.AddCommand(consensusGetCmd)
	ConsensusCmd.AddCommand(consensusSelectCmd)
	ConsensusCmd.AddCommand(consensusRecomputeCmd)
}

func runConsensusGet(cmd *cobra.Command, args []string) error {
	return showConsensus(cmd, args, false)
}

func runConsensusSelect(cmd *cobra.Command, args []string) error {
	return showConsensus(cmd, args, true)
}

func showConsensus(cmd *cobra.Command, args []string, compute bool) error {
	subject, kind, err := parseSubjectKind(args[0], args[1])
	if err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	var c *types.Claim
	if compute {
		c, err = e.store.SelectConsensus(cmd.Context(), subject, kind)
	} else {
		c, err = e.store.GetConsensus(cmd.Context(), subject, kind)
	}
	if errors.IsDecisionRequired(err) {
		return errors.WithHintf(err, "record one with: prov decision record %s %s <claim-id> --by <name>", subject.Key(), kind)
	}
	if err != nil {
		return err
	}

	active, err := e.store.GetActiveDecision(cmd.Context(), subject, kind)
	if err != nil && !errors.IsNotFoundError(err) {
		return err
	}

	if jsonOutput {
		out := map[string]interface{}{"claim": c}
		if active != nil {
			out["decision"] = active
		}
		return printJSON(out)
	}

	pterm.Printf("%s %s %s %s\n", sym.Consensus, pterm.Cyan(subject.Key()), pterm.Gray(string(kind)+":"), pterm.LightGreen(c.Value))
	field("claim", c.ID)
	field("confidence", formatConfidence(c.Confidence))
	field("run", c.AnnotationRunID)
	if active != nil {
		field("decided by", active.DecidedBy+" ("+string(active.Method)+")")
		field("decision", active.ID)
	} else {
		field("decided by", pterm.Gray("selector"))
	}
	return nil
}

func runConsensusRecompute(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	spinner, _ := pterm.DefaultSpinner.Start("Recomputing consensus...")
	changed, err := e.store.RecomputeConsensus(cmd.Context())
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("Consensus recomputed")

	if jsonOutput {
		return printJSON(map[string]int{"changed": changed})
	}
	pterm.Printf("  %s %d\n", pterm.Gray("changed:"), changed)
	return nil
}
