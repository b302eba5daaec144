package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/licenseiq/licenseiq/internal/types"
	"github.com/licenseiq/licenseiq/internal/validation"
)

var (
	mappingsContractID string
	mappingsJSONOutput bool
	mappingsStatus     string
	addTerm            string
	addField           string
	addEntity          string
	addConfidence      float64
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage contract term to ERP field mappings",
	Long:  "Propose, list, confirm, and reject term mappings. Only confirmed mappings are used to enrich synthesized rules.",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a contract's term mappings",
	Args:  cobra.NoArgs,
	RunE:  runMappingsList,
}

var mappingsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Propose a term mapping (created as pending)",
	Args:  cobra.NoArgs,
	RunE:  runMappingsAdd,
}

var mappingsConfirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "Confirm a term mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMappingStatus(cmd, args[0], types.MappingConfirmed)
	},
}

var mappingsRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a term mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMappingStatus(cmd, args[0], types.MappingRejected)
	},
}

func init() {
	mappingsCmd.PersistentFlags().BoolVar(&mappingsJSONOutput, "json", false, "Output in JSON format")

	mappingsListCmd.Flags().StringVar(&mappingsContractID, "contract", "", "Contract ID (required)")
	mappingsListCmd.Flags().StringVar(&mappingsStatus, "status", "", "Filter by status: pending, confirmed, or rejected")
	mappingsListCmd.MarkFlagRequired("contract")

	mappingsAddCmd.Flags().StringVar(&mappingsContractID, "contract", "", "Contract ID (required)")
	mappingsAddCmd.Flags().StringVar(&addTerm, "term", "", "Contract term, e.g. \"Net Sales\" (required)")
	mappingsAddCmd.Flags().StringVar(&addField, "field", "", "ERP field name (required)")
	mappingsAddCmd.Flags().StringVar(&addEntity, "entity", "", "ERP entity name")
	mappingsAddCmd.Flags().Float64Var(&addConfidence, "confidence", 1.0, "Mapping confidence between 0 and 1")
	mappingsAddCmd.MarkFlagRequired("contract")
	mappingsAddCmd.MarkFlagRequired("term")
	mappingsAddCmd.MarkFlagRequired("field")

	mappingsCmd.AddCommand(mappingsListCmd)
	mappingsCmd.AddCommand(mappingsAddCmd)
	mappingsCmd.AddCommand(mappingsConfirmCmd)
	mappingsCmd.AddCommand(mappingsRejectCmd)
}

func runMappingsList(cmd *cobra.Command, args []string) error {
	status := types.MappingStatus(mappingsStatus)

	errs := validation.ContractID(mappingsContractID)
	if status != "" {
		errs = append(errs, validation.MappingStatus(status)...)
	}
	if err := errs.Err(); err != nil {
		return err
	}

	db, err := openCLIStore()
	if err != nil {
		return err
	}
	defer db.Close()

	mappings, err := db.ListTermMappings(cmd.Context(), mappingsContractID, status)
	if err != nil {
		return fmt.Errorf("list term mappings: %w", err)
	}

	if mappingsJSONOutput {
		return printJSON(cmd.OutOrStdout(), types.TermMappingListResponse{
			ContractID: mappingsContractID,
			Mappings:   mappings,
			Total:      len(mappings),
		})
	}

	if len(mappings) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No term mappings found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tTERM\tERP FIELD\tERP ENTITY\tCONFIDENCE\tSTATUS")
	for _, m := range mappings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			m.ID,
			m.ContractTerm,
			m.ERPFieldName,
			orDash(m.ERPEntityName),
			m.Confidence,
			m.Status,
		)
	}
	return w.Flush()
}

func runMappingsAdd(cmd *cobra.Command, args []string) error {
	req := types.CreateTermMappingRequest{
		ContractTerm:  addTerm,
		ERPFieldName:  addField,
		ERPEntityName: addEntity,
		Confidence:    addConfidence,
	}

	errs := append(validation.ContractID(mappingsContractID), validation.NewTermMapping(req)...)
	if err := errs.Err(); err != nil {
		return err
	}

	db, err := openCLIStore()
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := db.CreateTermMapping(cmd.Context(), types.NewTermMapping{
		ContractID:    mappingsContractID,
		ContractTerm:  req.ContractTerm,
		ERPFieldName:  req.ERPFieldName,
		ERPEntityName: req.ERPEntityName,
		Confidence:    req.Confidence,
	})
	if err != nil {
		return fmt.Errorf("add term mapping: %w", err)
	}

	if mappingsJSONOutput {
		return printJSON(cmd.OutOrStdout(), m)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Term mapping %s created (pending): %q -> %s\n", m.ID, m.ContractTerm, m.ERPFieldName)
	return nil
}

func setMappingStatus(cmd *cobra.Command, rawID string, status types.MappingStatus) error {
	id := strings.ToUpper(rawID)
	if err := validation.ID("id", id).Err(); err != nil {
		return err
	}

	db, err := openCLIStore()
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := db.SetTermMappingStatus(cmd.Context(), id, status)
	if err != nil {
		return fmt.Errorf("update term mapping %s: %w", id, err)
	}

	if mappingsJSONOutput {
		return printJSON(cmd.OutOrStdout(), m)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Term mapping %s is now %s.\n", m.ID, m.Status)
	return nil
}
