package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/licenseiq/licenseiq/internal/types"
	"github.com/licenseiq/licenseiq/internal/validation"
)

var (
	rulesContractID  string
	rulesJSONOutput  bool
	reviewStatusFlag string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and review synthesized rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a contract's rules",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesReviewCmd = &cobra.Command{
	Use:   "review <id>",
	Short: "Set a rule's validation status",
	Long:  "Set a rule's validation status. Validated rules become active; pending rules become inactive.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesReview,
}

func init() {
	rulesCmd.PersistentFlags().BoolVar(&rulesJSONOutput, "json", false, "Output in JSON format")

	rulesListCmd.Flags().StringVar(&rulesContractID, "contract", "", "Contract ID (required)")
	rulesListCmd.MarkFlagRequired("contract")

	rulesReviewCmd.Flags().StringVar(&reviewStatusFlag, "status", "", "New status: pending or validated (required)")
	rulesReviewCmd.MarkFlagRequired("status")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesReviewCmd)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	if err := validation.ContractID(rulesContractID).Err(); err != nil {
		return err
	}

	db, err := openCLIStore()
	if err != nil {
		return err
	}
	defer db.Close()

	rules, err := db.ListRules(cmd.Context(), rulesContractID)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	if rulesJSONOutput {
		return printJSON(cmd.OutOrStdout(), types.RuleListResponse{
			ContractID: rulesContractID,
			Rules:      rules,
			Total:      len(rules),
		})
	}

	if len(rules) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No rules found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tCONFIDENCE\tSTATUS\tACTIVE\tCREATED")
	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%t\t%s\n",
			r.ID,
			r.RuleName,
			r.RuleType,
			r.Confidence,
			r.ValidationStatus,
			r.IsActive,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runRulesReview(cmd *cobra.Command, args []string) error {
	id := strings.ToUpper(args[0])
	req := types.ReviewRequest{Status: types.ValidationStatus(reviewStatusFlag)}

	errs := append(validation.ID("id", id), validation.Review(req)...)
	if err := errs.Err(); err != nil {
		return err
	}

	db, err := openCLIStore()
	if err != nil {
		return err
	}
	defer db.Close()

	rule, err := db.ReviewRule(cmd.Context(), id, req.Status)
	if err != nil {
		return fmt.Errorf("review rule %s: %w", id, err)
	}

	if rulesJSONOutput {
		return printJSON(cmd.OutOrStdout(), rule)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rule %s is now %s (active: %t).\n", rule.ID, rule.ValidationStatus, rule.IsActive)
	return nil
}
