// Package synthesis turns extracted contract entities into persisted royalty
// rules. A run filters the entities, prompts the model once per payment
// entity (or once over the whole set when none qualifies), enriches each
// generated rule with confirmed term mappings, and stores it.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/licenseiq/licenseiq/internal/config"
	"github.com/licenseiq/licenseiq/internal/llm"
	"github.com/licenseiq/licenseiq/internal/types"
	"github.com/oklog/ulid/v2"
)

// DefaultConfidenceThreshold separates validated rules from rules needing review.
const DefaultConfidenceThreshold = 0.70

// RuleStore is the persistence the pipeline needs.
type RuleStore interface {
	MappingSource
	SaveRule(ctx context.Context, rule types.NewRule) (*types.RuleRecord, error)
}

// Archiver receives a report of every finished run.
type Archiver interface {
	Archive(ctx context.Context, report types.RunReport) error
}

// Config holds the pipeline settings.
type Config struct {
	ConfidenceThreshold float64
	AbortOnStoreError   bool
	Generator           GeneratorConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		AbortOnStoreError:   true,
		Generator: GeneratorConfig{
			FallbackEntityLimit: DefaultFallbackEntityLimit,
			FallbackDiscount:    DefaultFallbackDiscount,
		},
	}
}

// ConfigFromSettings maps the synthesis section of the service configuration.
func ConfigFromSettings(c config.SynthesisConfig) Config {
	return Config{
		ConfidenceThreshold: c.ConfidenceThreshold,
		AbortOnStoreError:   c.AbortOnStoreError,
		Generator: GeneratorConfig{
			MaxFormulaDepth:     c.MaxFormulaDepth,
			FallbackEntityLimit: c.FallbackEntityLimit,
			FallbackDiscount:    c.FallbackDiscount,
		},
	}
}

// Service runs the rule synthesis pipeline.
type Service struct {
	generator *Generator
	enricher  *Enricher
	store     RuleStore
	archiver  Archiver
	model     string
	cfg       Config
}

// NewService creates a Service. archiver may be nil.
func NewService(c llm.Completer, s RuleStore, a Archiver, cfg Config) *Service {
	return &Service{
		generator: NewGenerator(c, cfg.Generator),
		enricher:  NewEnricher(s, cfg.Generator.MaxFormulaDepth),
		store:     s,
		archiver:  a,
		model:     c.ModelName(),
		cfg:       cfg,
	}
}

// Model returns the name of the model rules are generated with.
func (s *Service) Model() string {
	return s.model
}

// run accumulates the state of one Synthesize call.
type run struct {
	req       types.SynthesisRequest
	result    *types.SynthesisResult
	responses []types.ModelResponse
	byID      map[string]int
	logger    *slog.Logger
}

// Synthesize generates, enriches, and persists the rules implied by the
// request's entities. Generation failures are recorded in the result and do
// not stop the run. Store failures stop it when AbortOnStoreError is set, in
// which case the partial result is returned together with the error.
func (s *Service) Synthesize(ctx context.Context, req types.SynthesisRequest) (*types.SynthesisResult, error) {
	started := time.Now()
	r := &run{
		req: req,
		result: &types.SynthesisResult{
			RunID:              ulid.Make().String(),
			Rules:              []types.RuleRecord{},
			LowConfidenceRules: []types.RuleRecord{},
			Failures:           []types.UnitFailure{},
		},
		byID: make(map[string]int),
	}
	r.logger = slog.With(
		"component", "synthesis",
		"run_id", r.result.RunID,
		"contract_id", req.ContractID,
		"extraction_run_id", req.ExtractionRunID,
	)

	var err error
	matched := FilterRoyaltyEntities(req.Entities)
	if len(matched) > 0 {
		r.result.Mode = types.ModeEntity
		r.logger.Info("synthesis started", "mode", r.result.Mode, "entities", len(req.Entities), "matched", len(matched))
		err = s.synthesizeEntities(ctx, r, matched)
	} else {
		r.result.Mode = types.ModeContext
		r.logger.Info("synthesis started", "mode", r.result.Mode, "entities", len(req.Entities), "matched", 0)
		err = s.synthesizeFromContext(ctx, r)
	}

	r.result.LowConfidenceRules = s.lowConfidence(r.result.Rules)
	r.result.AverageConfidence = averageConfidence(r.result.Rules)

	mode := string(r.result.Mode)
	runsTotal.WithLabelValues(mode).Inc()
	runDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())

	if err != nil {
		r.logger.Error("synthesis aborted",
			"error", err,
			"rules", len(r.result.Rules),
			"failures", len(r.result.Failures),
		)
	} else {
		r.logger.Info("synthesis completed",
			"rules", len(r.result.Rules),
			"low_confidence", len(r.result.LowConfidenceRules),
			"failures", len(r.result.Failures),
			"average_confidence", r.result.AverageConfidence,
			"duration", time.Since(started),
		)
	}

	s.archive(ctx, r, started)
	return r.result, err
}

func (s *Service) synthesizeEntities(ctx context.Context, r *run, entities []types.ExtractedEntity) error {
	for i, entity := range entities {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("synthesis cancelled: %w", err)
		}

		gen, err := s.generator.GenerateForEntity(ctx, entity, r.req.GraphNodes)
		if gen.Raw != "" {
			r.responses = append(r.responses, types.ModelResponse{Unit: entity.Label, Raw: gen.Raw})
		}
		if err != nil {
			r.logger.Warn("rule generation failed", "entity", entity.Label, "error", err)
			r.fail(entity.Label, types.StageGenerate, err)
			continue
		}

		key := fmt.Sprintf("entity:%d:%s", i, entity.Label)
		if err := s.persist(ctx, r, entity.Label, key, gen.Rule); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) synthesizeFromContext(ctx context.Context, r *run) error {
	const unit = "context"

	gen, err := s.generator.GenerateFromContext(ctx, r.req.Entities)
	if gen.Raw != "" {
		r.responses = append(r.responses, types.ModelResponse{Unit: unit, Raw: gen.Raw})
	}
	if err != nil {
		r.logger.Warn("context rule generation failed", "error", err)
		r.fail(unit, types.StageGenerate, err)
		return nil
	}

	for _, skipped := range gen.Skipped {
		r.logger.Warn("inferred rule skipped", "error", skipped)
		r.fail(unit, types.StageGenerate, skipped)
	}

	for i, rule := range gen.Rules {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("synthesis cancelled: %w", err)
		}
		key := fmt.Sprintf("inferred:%d:%s", i, rule.RuleName)
		if err := s.persist(ctx, r, rule.RuleName, key, rule); err != nil {
			return err
		}
	}
	return nil
}

// persist enriches and stores one rule. A non-nil return aborts the run.
func (s *Service) persist(ctx context.Context, r *run, unit, sourceKey string, rule types.SynthesizedRule) error {
	enriched, err := s.enricher.Enrich(ctx, rule, r.req.ContractID)
	if err != nil {
		r.logger.Error("term enrichment failed", "unit", unit, "error", err)
		r.fail(unit, types.StageEnrich, err)
		return s.storeFailure(unit, err)
	}

	status, active := s.status(enriched)
	rec, err := s.store.SaveRule(ctx, types.NewRule{
		SynthesizedRule:  enriched,
		ContractID:       r.req.ContractID,
		ExtractionRunID:  r.req.ExtractionRunID,
		SourceKey:        sourceKey,
		ValidationStatus: status,
		IsActive:         active,
	})
	if err != nil {
		r.logger.Error("rule persist failed", "unit", unit, "error", err)
		r.fail(unit, types.StagePersist, err)
		return s.storeFailure(unit, err)
	}

	rulesTotal.WithLabelValues(string(r.result.Mode), string(status)).Inc()
	r.logger.Debug("rule persisted",
		"unit", unit,
		"rule_id", rec.ID,
		"confidence", rec.Confidence,
		"status", status,
		"term_mappings", len(rec.TermMappings),
	)

	// Source keys are unique within a run, so a repeated ID means the store
	// replaced a rule saved earlier in this run.
	if i, ok := r.byID[rec.ID]; ok {
		r.logger.Warn("rule replaced within run", "unit", unit, "rule_id", rec.ID, "source_key", sourceKey)
		r.result.Rules[i] = *rec
		return nil
	}
	r.byID[rec.ID] = len(r.result.Rules)
	r.result.Rules = append(r.result.Rules, *rec)
	return nil
}

func (s *Service) storeFailure(unit string, err error) error {
	if !s.cfg.AbortOnStoreError {
		return nil
	}
	return fmt.Errorf("store rule %q: %w", unit, err)
}

// status derives the initial review state. Inferred rules always await review.
func (s *Service) status(rule types.SynthesizedRule) (types.ValidationStatus, bool) {
	if rule.Inferred || rule.Confidence < s.cfg.ConfidenceThreshold {
		return types.StatusPending, false
	}
	return types.StatusValidated, true
}

func (s *Service) lowConfidence(rules []types.RuleRecord) []types.RuleRecord {
	low := []types.RuleRecord{}
	for _, rule := range rules {
		if rule.Inferred || rule.Confidence < s.cfg.ConfidenceThreshold {
			low = append(low, rule)
		}
	}
	return low
}

func averageConfidence(rules []types.RuleRecord) float64 {
	if len(rules) == 0 {
		return 0
	}
	var sum float64
	for _, rule := range rules {
		sum += rule.Confidence
	}
	return sum / float64(len(rules))
}

func (r *run) fail(unit, stage string, err error) {
	failuresTotal.WithLabelValues(stage).Inc()
	r.result.Failures = append(r.result.Failures, types.UnitFailure{
		Unit:  unit,
		Stage: stage,
		Error: err.Error(),
	})
}

func (s *Service) archive(ctx context.Context, r *run, started time.Time) {
	if s.archiver == nil {
		return
	}
	report := types.RunReport{
		RunID:           r.result.RunID,
		ContractID:      r.req.ContractID,
		ExtractionRunID: r.req.ExtractionRunID,
		Mode:            r.result.Mode,
		Model:           s.model,
		StartedAt:       started.UTC(),
		FinishedAt:      time.Now().UTC(),
		EntityCount:     len(r.req.Entities),
		Responses:       r.responses,
		Rules:           r.result.Rules,
		Failures:        r.result.Failures,
	}
	if err := s.archiver.Archive(context.WithoutCancel(ctx), report); err != nil {
		r.logger.Warn("run report archive failed", "error", err)
	}
}

// Terminology renders term with its confirmed ERP field for the contract.
func (s *Service) Terminology(ctx context.Context, contractID, term string) (string, error) {
	mappings, err := s.store.ConfirmedTermMappings(ctx, contractID)
	if err != nil {
		return "", fmt.Errorf("load confirmed term mappings: %w", err)
	}
	return FormatDualTerminology(term, mappings), nil
}
