package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/licenseiq/licenseiq/internal/types"
	"github.com/oklog/ulid/v2"
)

const termMappingColumns = `
	id, contract_id, contract_term, erp_field_name, erp_entity_name,
	confidence, status, created_at, updated_at`

// CreateTermMapping proposes a new term mapping in pending status.
func (s *SQLStore) CreateTermMapping(ctx context.Context, m types.NewTermMapping) (*types.TermMappingRecord, error) {
	now := time.Now().UTC()
	nowStr := formatTime(now)
	id := ulid.Make().String()

	var entityName sql.NullString
	if m.ERPEntityName != "" {
		entityName = sql.NullString{String: m.ERPEntityName, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO pending_term_mappings (
			id, contract_id, contract_term, erp_field_name, erp_entity_name,
			confidence, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		id,
		m.ContractID,
		m.ContractTerm,
		m.ERPFieldName,
		entityName,
		m.Confidence,
		string(types.MappingPending),
		nowStr,
		nowStr,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q -> %q", ErrDuplicateMapping, m.ContractTerm, m.ERPFieldName)
		}
		return nil, fmt.Errorf("insert term mapping: %w", err)
	}

	return &types.TermMappingRecord{
		TermMapping: types.TermMapping{
			ContractTerm:  m.ContractTerm,
			ERPFieldName:  m.ERPFieldName,
			ERPEntityName: m.ERPEntityName,
			Confidence:    m.Confidence,
		},
		ID:         id,
		ContractID: m.ContractID,
		Status:     types.MappingPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ListTermMappings returns a contract's term mappings. An empty status lists all of them.
func (s *SQLStore) ListTermMappings(ctx context.Context, contractID string, status types.MappingStatus) ([]types.TermMappingRecord, error) {
	query := `SELECT` + termMappingColumns + ` FROM pending_term_mappings WHERE contract_id = ?`
	args := []any{contractID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query term mappings: %w", err)
	}
	defer rows.Close()

	mappings := []types.TermMappingRecord{}
	for rows.Next() {
		rec, err := scanTermMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan term mapping: %w", err)
		}
		mappings = append(mappings, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return mappings, nil
}

// SetTermMappingStatus confirms, rejects, or reopens a term mapping.
func (s *SQLStore) SetTermMappingStatus(ctx context.Context, id string, status types.MappingStatus) (*types.TermMappingRecord, error) {
	switch status {
	case types.MappingPending, types.MappingConfirmed, types.MappingRejected:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE pending_term_mappings
		SET status = ?, updated_at = ?
		WHERE id = ?
	`), string(status), formatTime(now), id)
	if err != nil {
		return nil, fmt.Errorf("update term mapping status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT`+termMappingColumns+`
		FROM pending_term_mappings
		WHERE id = ?
	`), id)
	rec, err := scanTermMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan term mapping: %w", err)
	}
	return rec, nil
}

// ConfirmedTermMappings returns the contract's confirmed mappings, the only
// ones enrichment may use.
func (s *SQLStore) ConfirmedTermMappings(ctx context.Context, contractID string) ([]types.TermMapping, error) {
	records, err := s.ListTermMappings(ctx, contractID, types.MappingConfirmed)
	if err != nil {
		return nil, err
	}

	mappings := make([]types.TermMapping, 0, len(records))
	for _, rec := range records {
		mappings = append(mappings, rec.TermMapping)
	}
	return mappings, nil
}

func scanTermMapping(scanner interface{ Scan(...any) error }) (*types.TermMappingRecord, error) {
	var rec types.TermMappingRecord
	var entityName sql.NullString
	var status, createdAt, updatedAt string

	err := scanner.Scan(
		&rec.ID,
		&rec.ContractID,
		&rec.ContractTerm,
		&rec.ERPFieldName,
		&entityName,
		&rec.Confidence,
		&status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entityName.Valid {
		rec.ERPEntityName = entityName.String
	}
	rec.Status = types.MappingStatus(status)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)

	return &rec, nil
}
