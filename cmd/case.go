package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veridoc/veridoc/internal/models"
)

var (
	caseLinkDescription string
	caseSummaryCached   bool
)

// caseCmd represents the case command group
var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Manage compliance cases",
	Long: `Manage compliance cases: link documents, list cases, and generate
verification summaries.

Available subcommands:
  link    - Link a document to a case
  summary - Generate or show a case verification summary
  list    - List all cases`,
}

var caseLinkCmd = &cobra.Command{
	Use:   "link <case-id> <document-id>",
	Short: "Link a document to a case",
	Long: `Link a document to a case. The case is created on first use.
Linking the same document twice is a no-op. A document may belong to several
cases.

Example:
  veridoc case link CASE_001 DOC_20260830_120000_A3F8B
  veridoc case link CASE_001 DOC_20260830_120301_99C21 --description "onboarding KYC"`,
	Args: cobra.ExactArgs(2),
	RunE: runCaseLink,
}

var caseSummaryCmd = &cobra.Command{
	Use:   "summary <case-id>",
	Short: "Generate a case verification summary",
	Long: `Aggregate extraction results across every document linked to the
case: category grouping, per-category verification, and cross-document
consistency checks on names and addresses. The summary is cached on the case
record; --cached shows the last generated summary without recomputing.

Example:
  veridoc case summary CASE_001
  veridoc case summary CASE_001 --cached`,
	Args: cobra.ExactArgs(1),
	RunE: runCaseSummary,
}

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all cases",
	Args:  cobra.NoArgs,
	RunE:  runCaseList,
}

func init() {
	rootCmd.AddCommand(caseCmd)
	caseCmd.AddCommand(caseLinkCmd)
	caseCmd.AddCommand(caseSummaryCmd)
	caseCmd.AddCommand(caseListCmd)

	caseLinkCmd.Flags().StringVar(&caseLinkDescription, "description", "", "case description, set on first link")
	caseSummaryCmd.Flags().BoolVar(&caseSummaryCached, "cached", false, "show the cached summary without regenerating")
}

func runCaseLink(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	record, err := app.Cases.Link(args[0], args[1], caseLinkDescription)
	if err != nil {
		return err
	}

	fmt.Printf("Case %s now links %d documents\n", record.CaseID, len(record.Documents))
	return nil
}

func runCaseSummary(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	caseID := args[0]

	var summary *models.CaseSummary
	if caseSummaryCached {
		record, err := app.Cases.Get(caseID)
		if err != nil {
			return err
		}
		if record.CaseSummary == nil {
			return fmt.Errorf("case %s has no cached summary, run without --cached", caseID)
		}
		summary = record.CaseSummary
	} else {
		summary, err = app.newAggregator().GenerateSummary(caseID)
		if err != nil {
			return err
		}
	}

	printCaseSummary(caseID, summary)
	return nil
}

func printCaseSummary(caseID string, summary *models.CaseSummary) {
	fmt.Printf("Case %s  (generated %s)\n", caseID, summary.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Verification: %s\n", summary.VerificationStatus)
	if summary.Message != "" {
		fmt.Printf("Note: %s\n", summary.Message)
	}
	fmt.Println()

	for _, category := range models.Categories() {
		cat := summary.Category(category)
		verified := "not verified"
		if cat.Verified {
			verified = "verified"
		}
		fmt.Printf("%s: %d documents, %s\n", category, len(cat.Documents), verified)
		for field, value := range cat.ExtractedData {
			fmt.Printf("    %-20s %s\n", field, value)
		}
		if len(cat.Defaulted) > 0 {
			fmt.Printf("    (defaulted: %v)\n", cat.Defaulted)
		}
	}

	fmt.Println()
	printConsistency("Name consistency", summary.ConsistencyChecks.Name)
	printConsistency("Address consistency", summary.ConsistencyChecks.Address)
}

func printConsistency(label string, check models.ConsistencyCheck) {
	fmt.Printf("%s: %s", label, check.Status)
	if check.Message != "" {
		fmt.Printf(" (%s)", check.Message)
	}
	fmt.Println()
	for _, value := range check.Values {
		fmt.Printf("    %s\n", value)
	}
}

func runCaseList(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	cases, err := app.Cases.List()
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		fmt.Println("No cases found")
		return nil
	}

	fmt.Printf("%-20s %-8s %-10s %-12s %s\n", "CASE ID", "STATUS", "DOCUMENTS", "VERIFIED", "DESCRIPTION")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, record := range cases {
		verified := "-"
		if record.CaseSummary != nil {
			verified = string(record.CaseSummary.VerificationStatus)
		}
		fmt.Printf("%-20s %-8s %-10d %-12s %s\n",
			record.CaseID, record.Status, len(record.Documents), verified, record.Description)
	}
	fmt.Printf("\nTotal: %d cases\n", len(cases))
	return nil
}
