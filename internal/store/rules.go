package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/licenseiq/licenseiq/internal/formula"
	"github.com/licenseiq/licenseiq/internal/types"
	"github.com/oklog/ulid/v2"
)

// termMappingsKey is the reserved formula key that carries enrichment results.
const termMappingsKey = "_termMappings"

// storedFormulaDepth bounds decoding of formulas read back from the database.
// Writes are already bounded by the pipeline's configured depth.
const storedFormulaDepth = 1024

const ruleColumns = `
	id, contract_id, extraction_run_id, rule_type, rule_name, description,
	formula_definition, applicability_filters, confidence, linked_node_id,
	inferred, validation_status, is_active, created_at, updated_at`

// SaveRule persists a synthesized rule. Rules are keyed by
// (contract, extraction run, source key); saving the same key again replaces
// the row's content and keeps its ID.
func (s *SQLStore) SaveRule(ctx context.Context, rule types.NewRule) (*types.RuleRecord, error) {
	formulaJSON, err := encodeFormula(rule.SynthesizedRule)
	if err != nil {
		return nil, err
	}

	filters := rule.ApplicabilityFilters
	if filters == nil {
		filters = map[string]any{}
	}
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("marshal applicability filters: %w", err)
	}

	var linkedNodeID sql.NullString
	if rule.LinkedNodeID != "" {
		linkedNodeID = sql.NullString{String: rule.LinkedNodeID, Valid: true}
	}

	now := time.Now().UTC()
	nowStr := formatTime(now)
	id := ulid.Make().String()

	var storedID, createdAt string
	err = s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO rule_definitions (
			id, contract_id, extraction_run_id, source_key, rule_type, rule_name, description,
			formula_definition, applicability_filters, confidence, linked_node_id,
			inferred, validation_status, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, extraction_run_id, source_key) DO UPDATE SET
			rule_type = excluded.rule_type,
			rule_name = excluded.rule_name,
			description = excluded.description,
			formula_definition = excluded.formula_definition,
			applicability_filters = excluded.applicability_filters,
			confidence = excluded.confidence,
			linked_node_id = excluded.linked_node_id,
			inferred = excluded.inferred,
			validation_status = excluded.validation_status,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`),
		id,
		rule.ContractID,
		rule.ExtractionRunID,
		rule.SourceKey,
		rule.RuleType,
		rule.RuleName,
		rule.Description,
		string(formulaJSON),
		string(filtersJSON),
		rule.Confidence,
		linkedNodeID,
		rule.Inferred,
		string(rule.ValidationStatus),
		rule.IsActive,
		nowStr,
		nowStr,
	).Scan(&storedID, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert rule: %w", err)
	}

	return &types.RuleRecord{
		SynthesizedRule:  rule.SynthesizedRule,
		ID:               storedID,
		ContractID:       rule.ContractID,
		ExtractionRunID:  rule.ExtractionRunID,
		ValidationStatus: rule.ValidationStatus,
		IsActive:         rule.IsActive,
		CreatedAt:        parseTime(createdAt),
		UpdatedAt:        now,
	}, nil
}

// GetRule retrieves a rule by ID.
func (s *SQLStore) GetRule(ctx context.Context, id string) (*types.RuleRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT`+ruleColumns+`
		FROM rule_definitions
		WHERE id = ?
	`), id)

	rec, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	return rec, nil
}

// ListRules returns a contract's rules, oldest first.
func (s *SQLStore) ListRules(ctx context.Context, contractID string) ([]types.RuleRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT`+ruleColumns+`
		FROM rule_definitions
		WHERE contract_id = ?
		ORDER BY created_at ASC, id ASC
	`), contractID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := []types.RuleRecord{}
	for rows.Next() {
		rec, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return rules, nil
}

// ReviewRule moves a rule between pending and validated. Validated rules are
// active, pending rules are not. Re-applying the current status is a no-op.
func (s *SQLStore) ReviewRule(ctx context.Context, id string, status types.ValidationStatus) (*types.RuleRecord, error) {
	if status != types.StatusPending && status != types.StatusValidated {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	current, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.ValidationStatus == status {
		return current, nil
	}

	now := time.Now().UTC()
	active := status == types.StatusValidated

	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE rule_definitions
		SET validation_status = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`), string(status), active, formatTime(now), id)
	if err != nil {
		return nil, fmt.Errorf("update rule status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	current.ValidationStatus = status
	current.IsActive = active
	current.UpdatedAt = now
	return current, nil
}

// encodeFormula renders the stored formula JSON. Non-empty term mappings are
// folded into the formula object under the reserved key.
func encodeFormula(rule types.SynthesizedRule) ([]byte, error) {
	if rule.Formula == nil {
		return nil, errors.New("encode formula: rule has no formula")
	}

	m, err := formula.ToMap(rule.Formula)
	if err != nil {
		return nil, fmt.Errorf("encode formula: %w", err)
	}
	if len(rule.TermMappings) > 0 {
		m[termMappingsKey] = rule.TermMappings
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode formula: %w", err)
	}
	return data, nil
}

// decodeFormula splits stored formula JSON back into the node and its term mappings.
func decodeFormula(data string) (formula.Node, []types.TermMapping, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, nil, fmt.Errorf("parse formula JSON: %w", err)
	}

	var mappings []types.TermMapping
	if raw, ok := m[termMappingsKey]; ok {
		delete(m, termMappingsKey)
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("parse term mappings: %w", err)
		}
		if err := json.Unmarshal(b, &mappings); err != nil {
			return nil, nil, fmt.Errorf("parse term mappings: %w", err)
		}
	}

	node, err := formula.Decode(m, storedFormulaDepth)
	if err != nil {
		return nil, nil, err
	}
	return node, mappings, nil
}

// scanRule scans a row into a RuleRecord, handling JSON columns.
func scanRule(scanner interface{ Scan(...any) error }) (*types.RuleRecord, error) {
	var rec types.RuleRecord
	var formulaJSON, filtersJSON, status, createdAt, updatedAt string
	var linkedNodeID sql.NullString

	err := scanner.Scan(
		&rec.ID,
		&rec.ContractID,
		&rec.ExtractionRunID,
		&rec.RuleType,
		&rec.RuleName,
		&rec.Description,
		&formulaJSON,
		&filtersJSON,
		&rec.Confidence,
		&linkedNodeID,
		&rec.Inferred,
		&status,
		&rec.IsActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	node, mappings, err := decodeFormula(formulaJSON)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rec.ID, err)
	}
	rec.Formula = node
	rec.TermMappings = mappings

	if filtersJSON != "" {
		if err := json.Unmarshal([]byte(filtersJSON), &rec.ApplicabilityFilters); err != nil {
			return nil, fmt.Errorf("parse applicability filters JSON: %w", err)
		}
	}

	if linkedNodeID.Valid {
		rec.LinkedNodeID = linkedNodeID.String
	}
	rec.ValidationStatus = types.ValidationStatus(status)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)

	return &rec, nil
}
