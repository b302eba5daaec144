package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/licenseiq/licenseiq/internal/config"
	"github.com/licenseiq/licenseiq/internal/store"
	"github.com/licenseiq/licenseiq/internal/types"
	"github.com/licenseiq/licenseiq/internal/validation"
)

var (
	synthContractID string
	synthRunID      string
	synthInputPath  string
	synthJSONOutput bool
)

// Synthesizer runs one synthesis request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req types.SynthesisRequest) (*types.SynthesisResult, error)
}

// newSynthesizer builds the synthesis pipeline for the synthesize command.
// Replaced in tests.
var newSynthesizer = func(cfg *config.Config, db *store.SQLStore) (Synthesizer, error) {
	svc, err := newService(cfg, db)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Synthesize rules for a contract from an extraction file",
	Long: `Read extracted entities and graph nodes from a JSON file and run the
rule synthesis pipeline against the configured store.

The input file has the same shape as the HTTP synthesize request body:
  {"entities": [...], "graph_nodes": [...]}
Use "-" to read from stdin.`,
	Args: cobra.NoArgs,
	RunE: runSynthesize,
}

func init() {
	synthesizeCmd.Flags().StringVar(&synthContractID, "contract", "", "Contract ID (required)")
	synthesizeCmd.Flags().StringVar(&synthRunID, "run", "", "Extraction run ID (overrides the file's extraction_run_id)")
	synthesizeCmd.Flags().StringVar(&synthInputPath, "input", "", "Path to the extraction JSON file, or - for stdin (required)")
	synthesizeCmd.Flags().BoolVar(&synthJSONOutput, "json", false, "Output in JSON format")
	synthesizeCmd.MarkFlagRequired("contract")
	synthesizeCmd.MarkFlagRequired("input")
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	req, err := readSynthesizeInput(cmd.InOrStdin(), synthInputPath)
	if err != nil {
		return err
	}
	if synthRunID != "" {
		req.ExtractionRunID = synthRunID
	}
	if err := validation.Synthesize(synthContractID, req).Err(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Logs go to stderr so stdout carries only the result.
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Log))

	db, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := newSynthesizer(cfg, db)
	if err != nil {
		return err
	}

	result, runErr := svc.Synthesize(cmd.Context(), types.SynthesisRequest{
		ContractID:      synthContractID,
		ExtractionRunID: req.ExtractionRunID,
		Entities:        req.Entities,
		GraphNodes:      req.GraphNodes,
	})
	if result != nil {
		if err := printSynthesisResult(cmd.OutOrStdout(), result, synthJSONOutput); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("synthesis aborted: %w", runErr)
	}
	return nil
}

func readSynthesizeInput(stdin io.Reader, path string) (types.SynthesizeRequest, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return types.SynthesizeRequest{}, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var req types.SynthesizeRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return types.SynthesizeRequest{}, fmt.Errorf("parse input: %w", err)
	}
	return req, nil
}

func printSynthesisResult(w io.Writer, result *types.SynthesisResult, asJSON bool) error {
	if asJSON {
		return printJSON(w, result)
	}

	fmt.Fprintf(w, "Run:        %s\n", result.RunID)
	fmt.Fprintf(w, "Mode:       %s\n", result.Mode)
	fmt.Fprintf(w, "Rules:      %d (%d low confidence)\n", len(result.Rules), len(result.LowConfidenceRules))
	fmt.Fprintf(w, "Confidence: %.2f average\n", result.AverageConfidence)

	if len(result.Rules) > 0 {
		fmt.Fprintln(w)
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tCONFIDENCE\tSTATUS")
		for _, r := range result.Rules {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n",
				r.ID, r.RuleName, r.RuleType, r.Confidence, r.ValidationStatus)
		}
		tw.Flush()
	}

	if len(result.Failures) > 0 {
		fmt.Fprintln(w)
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "UNIT\tSTAGE\tERROR")
		for _, f := range result.Failures {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Unit, f.Stage, f.Error)
		}
		tw.Flush()
	}
	return nil
}
