package commands

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/provenance/biblio"
	"github.com/teranos/provenance/biblio/dedup"
	"github.com/teranos/provenance/sym"
)

// BiblioCmd represents the biblio (identity and citation) command
var BiblioCmd = &cobra.Command{
	Use:   "biblio",
	Short: sym.Biblio + " Identifiers, publications, scholars and editions",
	Long: sym.Biblio + ` biblio - Identifiers, publications, scholars and editions

Examples:
  prov biblio identifier add "P 100001" --kind cdli --artifact P100001
  prov biblio identifier lookup p100001 --kind cdli
  prov biblio publication add --run <run-id> --title "Ur III Texts" --year 1998 --doi 10.1/x
  prov biblio publication find "ur iii texts" --year 1998
  prov biblio publication supersede <old-id> <new-id>
  prov biblio scholar add --run <run-id> --surname Sallaberger --given Walther
  prov biblio edition link P100001 <publication-id> --type full_edition --run <run-id>
  prov biblio edition current P100001`,
}

var (
	biblioRunID string

	identifierKind     string
	identifierArtifact string

	pubRecord dedup.PublicationRecord
	pubYear   int
	pubLimit  int

	scholarRecord dedup.ScholarRecord

	editionType     string
	editionMetadata string
)

var identifierCmd = &cobra.Command{
	Use:   "identifier",
	Short: "Map external catalog keys to artifacts",
}

var identifierAddCmd = &cobra.Command{
	Use:   "add <raw-key>",
	Short: "Register an external key for an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentifierAdd,
}

var identifierLookupCmd = &cobra.Command{
	Use:   "lookup <raw-key>",
	Short: "Resolve an external key to its artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentifierLookup,
}

var identifierListCmd = &cobra.Command{
	Use:     "ls <artifact>",
	Aliases: []string{"list"},
	Short:   "List the external keys of an artifact",
	Args:    cobra.ExactArgs(1),
	RunE:    runIdentifierList,
}

var publicationCmd = &cobra.Command{
	Use:     "publication",
	Aliases: []string{"pub"},
	Short:   "Deduplicated publications",
}

var publicationAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a bibliographic record, merging duplicates",
	Args:  cobra.NoArgs,
	RunE:  runPublicationAdd,
}

var publicationShowCmd = &cobra.Command{
	Use:   "show <publication-id>",
	Short: "Show a publication and its supersession chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublicationShow,
}

var publicationFindCmd = &cobra.Command{
	Use:   "find <doi|bib-key|title>",
	Short: "Search publications, best match first",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublicationFind,
}

var publicationSupersedeCmd = &cobra.Command{
	Use:   "supersede <old-id> <new-id>",
	Short: "Mark new as the revised version of old",
	Args:  cobra.ExactArgs(2),
	RunE:  runPublicationSupersede,
}

var scholarCmd = &cobra.Command{
	Use:   "scholar",
	Short: "Deduplicated scholars",
}

var scholarAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a scholar, merging duplicates",
	Args:  cobra.NoArgs,
	RunE:  runScholarAdd,
}

var scholarShowCmd = &cobra.Command{
	Use:   "show <scholar-id>",
	Short: "Show one scholar",
	Args:  cobra.ExactArgs(1),
	RunE:  runScholarShow,
}

var editionCmd = &cobra.Command{
	Use:   "edition",
	Short: "Artifact to publication links",
}

var editionLinkCmd = &cobra.Command{
	Use:   "link <artifact> <publication-id>",
	Short: "Link an artifact to a publication",
	Args:  cobra.ExactArgs(2),
	RunE:  runEditionLink,
}

var editionListCmd = &cobra.Command{
	Use:     "ls <artifact>",
	Aliases: []string{"list"},
	Short:   "List every edition of an artifact",
	Args:    cobra.ExactArgs(1),
	RunE:    runEditionList,
}

var editionCurrentCmd = &cobra.Command{
	Use:   "current <artifact>",
	Short: "Show the current edition of an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runEditionCurrent,
}

var editionSupersedeCmd = &cobra.Command{
	Use:   "supersede <old-id> <new-id>",
	Short: "Mark new as replacing old for the same artifact",
	Args:  cobra.ExactArgs(2),
	RunE:  runEditionSupersede,
}

func init() {
	addJSONFlag(BiblioCmd)

	identifierAddCmd.Flags().StringVar(&identifierKind, "kind", "", "Catalog kind (cdli, museum, excavation, ...)")
	identifierAddCmd.Flags().StringVar(&identifierArtifact, "artifact", "", "Canonical artifact id")
	_ = identifierAddCmd.MarkFlagRequired("kind")
	_ = identifierAddCmd.MarkFlagRequired("artifact")
	identifierLookupCmd.Flags().StringVar(&identifierKind, "kind", "", "Catalog kind")
	_ = identifierLookupCmd.MarkFlagRequired("kind")
	identifierCmd.AddCommand(identifierAddCmd, identifierLookupCmd, identifierListCmd)

	f := publicationAddCmd.Flags()
	f.StringVar(&biblioRunID, "run", "", "Annotation run the record comes from")
	f.StringVar(&pubRecord.Title, "title", "", "Title")
	f.StringVar(&pubRecord.ShortTitle, "short-title", "", "Abbreviation (e.g. MVN 3)")
	f.StringVar(&pubRecord.Authors, "authors", "", "Authors")
	f.IntVar(&pubRecord.Year, "year", 0, "Publication year")
	f.StringVar(&pubRecord.Volume, "volume", "", "Volume")
	f.StringVar(&pubRecord.DOI, "doi", "", "DOI")
	f.StringVar(&pubRecord.BibKey, "bib-key", "", "Bibliography key")
	f.StringVar(&pubRecord.Source, "source", "", "Source bibliography name")
	f.StringVar(&pubRecord.SourceKey, "source-key", "", "Record key within the source")
	_ = publicationAddCmd.MarkFlagRequired("run")
	_ = publicationAddCmd.MarkFlagRequired("title")
	publicationFindCmd.Flags().IntVar(&pubYear, "year", 0, "Restrict to a year")
	publicationFindCmd.Flags().IntVar(&pubLimit, "limit", 20, "Maximum results")
	publicationCmd.AddCommand(publicationAddCmd, publicationShowCmd, publicationFindCmd, publicationSupersedeCmd)

	f = scholarAddCmd.Flags()
	f.StringVar(&biblioRunID, "run", "", "Annotation run the record comes from")
	f.StringVar(&scholarRecord.Surname, "surname", "", "Surname")
	f.StringVar(&scholarRecord.GivenNames, "given", "", "Given names or initials")
	f.StringVar(&scholarRecord.FullName, "full-name", "", "Display name when not \"given surname\"")
	f.StringVar(&scholarRecord.ORCID, "orcid", "", "ORCID iD")
	f.StringVar(&scholarRecord.Source, "source", "", "Source name")
	_ = scholarAddCmd.MarkFlagRequired("run")
	_ = scholarAddCmd.MarkFlagRequired("surname")
	scholarCmd.AddCommand(scholarAddCmd, scholarShowCmd)

	f = editionLinkCmd.Flags()
	f.StringVar(&biblioRunID, "run", "", "Annotation run the link comes from")
	f.StringVar(&editionType, "type", string(biblio.FullEdition), "Edition type")
	f.StringVar(&editionMetadata, "metadata", "", "Edition metadata as a JSON object (page, plate, number)")
	_ = editionLinkCmd.MarkFlagRequired("run")
	editionCmd.AddCommand(editionLinkCmd, editionListCmd, editionCurrentCmd, editionSupersedeCmd)

	BiblioCmd.AddCommand(identifierCmd, publicationCmd, scholarCmd, editionCmd)
}

func runIdentifierAdd(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.resolver.RegisterIdentifier(cmd.Context(), args[0], identifierKind, identifierArtifact)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(id)
	}
	pterm.Printf("%s %s %s %s\n", pterm.LightGreen("✓ Identifier:"), pterm.Yellow(id.Kind+":"+id.NormalizedKey), pterm.Gray("→"), pterm.LightMagenta(id.ArtifactID))
	return nil
}

func runIdentifierLookup(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	artifactID, err := e.resolver.LookupIdentifier(cmd.Context(), args[0], identifierKind)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]string{"artifact_id": artifactID})
	}
	pterm.Println(artifactID)
	return nil
}

func runIdentifierList(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ids, err := e.resolver.IdentifiersFor(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(ids)
	}
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{id.Kind, id.NormalizedKey, id.Raw, formatTime(id.CreatedAt)})
	}
	return renderTable([]string{"Kind", "Key", "Raw", "Created"}, rows)
}

func printRegistration(reg *biblio.Registration) error {
	if jsonOutput {
		return printJSON(reg)
	}
	switch reg.Outcome {
	case dedup.OutcomeCreate:
		pterm.Printf("%s %s\n", pterm.LightGreen("✓ Created:"), pterm.White(reg.ID))
	case dedup.OutcomeMerge:
		pterm.Printf("%s %s %s\n", pterm.LightGreen("✓ Merged into:"), pterm.White(reg.ID),
			pterm.Gray("(tier "+strconv.Itoa(reg.Tier)+", "+string(reg.Basis)+", "+formatConfidence(reg.Confidence)+")"))
	case dedup.OutcomeStage:
		pterm.Warning.Printf("Staged for review as candidate %s (tier %d, confidence %s)\n", reg.CandidateID, reg.Tier, formatConfidence(reg.Confidence))
		pterm.Printf("  %s prov dedup show %s\n", pterm.Gray("→"), reg.CandidateID)
	}
	return nil
}

func runPublicationAdd(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	reg, err := e.resolver.RegisterPublication(cmd.Context(), biblioRunID, pubRecord)
	if err != nil {
		return err
	}
	return printRegistration(reg)
}

func runPublicationShow(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	chain, err := e.resolver.PublicationChain(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(chain)
	}

	p := chain[0]
	pterm.Printf("%s %s\n", sym.Biblio, pterm.Cyan(p.ID))
	field("title", p.Title)
	field("short title", orDash(p.ShortTitle))
	field("authors", orDash(p.Authors))
	if p.Year > 0 {
		field("year", p.Year)
	}
	field("volume", orDash(p.Volume))
	field("doi", orDash(p.DOI))
	field("source", orDash(strings.TrimSpace(p.Source+" "+p.SourceKey)))
	for _, older := range chain[1:] {
		pterm.Printf("  %s %s %s\n", pterm.Gray("supersedes"), pterm.LightMagenta(older.ID), pterm.Gray(older.Title))
	}
	return nil
}

func runPublicationFind(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	hits, err := e.resolver.FindPublication(cmd.Context(), biblio.PublicationQuery{Text: args[0], Year: pubYear, Limit: pubLimit})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(hits)
	}
	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		year := ""
		if h.Publication.Year > 0 {
			year = strconv.Itoa(h.Publication.Year)
		}
		rows = append(rows, []string{formatConfidence(h.Confidence), string(h.Basis), h.Publication.ID, h.Publication.Title, year})
	}
	return renderTable([]string{"Confidence", "Basis", "ID", "Title", "Year"}, rows)
}

func runPublicationSupersede(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.resolver.SupersedePublication(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	pterm.Printf("%s %s %s %s\n", pterm.LightGreen("✓"), pterm.White(args[1]), pterm.Gray("supersedes"), pterm.LightMagenta(args[0]))
	return nil
}

func runScholarAdd(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	reg, err := e.resolver.RegisterScholar(cmd.Context(), biblioRunID, scholarRecord)
	if err != nil {
		return err
	}
	return printRegistration(reg)
}

func runScholarShow(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	s, err := e.resolver.GetScholar(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(s)
	}
	pterm.Printf("%s %s\n", sym.Biblio, pterm.Cyan(s.ID))
	field("name", s.FullName)
	field("orcid", orDash(s.ORCID))
	field("source", orDash(s.Source))
	return nil
}

func runEditionLink(cmd *cobra.Command, args []string) error {
	in := biblio.EditionInput{
		ArtifactID:    args[0],
		PublicationID: args[1],
		EditionType:   biblio.EditionType(editionType),
	}
	if editionMetadata != "" {
		in.Metadata = json.RawMessage(editionMetadata)
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ed, err := e.resolver.LinkEdition(cmd.Context(), biblioRunID, in)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(ed)
	}
	pterm.Printf("%s %s\n", pterm.LightGreen("✓ Edition:"), pterm.White(ed.ID))
	if ed.IsCurrentEdition {
		pterm.Printf("  %s %s\n", pterm.Gray("→"), pterm.LightGreen("current edition"))
	}
	return nil
}

func runEditionList(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	eds, err := e.resolver.ListEditions(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(eds)
	}
	rows := make([][]string, 0, len(eds))
	for _, ed := range eds {
		mark := ""
		if ed.IsCurrentEdition {
			mark = sym.Consensus
		}
		year := ""
		if ed.PublicationYear > 0 {
			year = strconv.Itoa(ed.PublicationYear)
		}
		rows = append(rows, []string{mark, ed.ID, string(ed.EditionType), ed.PublicationID, year, orDash(ed.SupersedesID)})
	}
	return renderTable([]string{"", "ID", "Type", "Publication", "Year", "Supersedes"}, rows)
}

func runEditionCurrent(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ed, err := e.resolver.GetCurrentEdition(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(ed)
	}
	pterm.Printf("%s %s %s\n", sym.Consensus, pterm.Cyan(ed.ArtifactID), pterm.LightGreen(string(ed.EditionType)))
	field("edition", ed.ID)
	field("publication", ed.PublicationID)
	if len(ed.Metadata) > 0 {
		field("metadata", string(ed.Metadata))
	}
	return nil
}

func runEditionSupersede(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.resolver.SupersedeEdition(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	pterm.Printf("%s %s %s %s\n", pterm.LightGreen("✓"), pterm.White(args[1]), pterm.Gray("supersedes"), pterm.LightMagenta(args[0]))
	return nil
}
