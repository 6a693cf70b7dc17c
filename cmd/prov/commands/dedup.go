package commands

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/provenance/biblio"
	"github.com/teranos/provenance/sym"
)

// DedupCmd represents the dedup (manual review) command
var DedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: sym.Dedup + " Review staged deduplication candidates",
	Long: sym.Dedup + ` dedup - Review staged deduplication candidates

Records that matched an existing publication or scholar too weakly to merge
automatically are staged here. Resolve each one as a merge into a target or
as a distinct new record.

Examples:
  prov dedup ls                                   # Pending candidates
  prov dedup ls --status merged
  prov dedup show <candidate-id>
  prov dedup resolve <candidate-id> merge --into <publication-id> --by "J. Editor"
  prov dedup resolve <candidate-id> distinct --by "J. Editor"`,
}

var dedupListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List candidates by status",
	Args:    cobra.NoArgs,
	RunE:    runDedupList,
}

var dedupShowCmd = &cobra.Command{
	Use:   "show <candidate-id>",
	Short: "Show one candidate and its staged record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDedupShow,
}

var dedupResolveCmd = &cobra.Command{
	Use:       "resolve <candidate-id> <merge|distinct>",
	Short:     "Merge a candidate into a record or keep it distinct",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(biblio.ResolveMerge), string(biblio.ResolveDistinct)},
	RunE:      runDedupResolve,
}

var (
	dedupStatus string
	dedupLimit  int
	dedupInto   string
	dedupBy     string
)

func init() {
	addJSONFlag(DedupCmd)

	dedupListCmd.Flags().StringVar(&dedupStatus, "status", string(biblio.CandidatePending), "pending, merged or distinct")
	dedupListCmd.Flags().IntVar(&dedupLimit, "limit", 50, "Maximum candidates to show")
	dedupResolveCmd.Flags().StringVar(&dedupInto, "into", "", "Target record id for merge")
	dedupResolveCmd.Flags().StringVar(&dedupBy, "by", "", "Who resolved the candidate")
	_ = dedupResolveCmd.MarkFlagRequired("by")

	DedupCmd.AddCommand(dedupListCmd)
	DedupCmd.AddCommand(dedupShowCmd)
	DedupCmd.AddCommand(dedupResolveCmd)
}

func runDedupList(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	candidates, err := e.resolver.ListDedupCandidates(cmd.Context(), biblio.CandidateStatus(dedupStatus), dedupLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(candidates)
	}
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []string{c.ID, string(c.Entity), strconv.Itoa(c.Tier), formatConfidence(c.Confidence), c.Basis, strings.Join(c.MatchIDs, ","), formatTime(c.CreatedAt)})
	}
	return renderTable([]string{"ID", "Entity", "Tier", "Confidence", "Basis", "Matches", "Created"}, rows)
}

func runDedupShow(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	c, err := e.resolver.GetDedupCandidate(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(c)
	}
	pterm.Printf("%s %s %s\n", sym.Dedup, pterm.Cyan(c.ID), pterm.Gray(string(c.Status)))
	field("entity", c.Entity)
	field("record", string(c.Payload))
	field("matches", strings.Join(c.MatchIDs, ", "))
	field("tier", c.Tier)
	field("confidence", formatConfidence(c.Confidence))
	field("reason", orDash(c.Reason))
	if c.ResolvedAt != nil {
		field("resolved", c.ResolvedBy+" → "+c.ResolvedID+" at "+formatTime(*c.ResolvedAt))
	}
	return nil
}

func runDedupResolve(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	c, err := e.resolver.ResolveDedupCandidate(cmd.Context(), args[0], biblio.ResolveAction(args[1]), dedupBy, dedupInto)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(c)
	}
	pterm.Printf("%s %s %s %s\n", pterm.LightGreen("✓ "+string(c.Status)+":"), pterm.White(c.ID), pterm.Gray("→"), pterm.LightMagenta(c.ResolvedID))
	return nil
}
