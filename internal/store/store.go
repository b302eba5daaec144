package store

import (
	"context"

	"github.com/licenseiq/licenseiq/internal/types"
)

// Store defines the interface contract for rule and term mapping persistence.
type Store interface {
	SaveRule(ctx context.Context, rule types.NewRule) (*types.RuleRecord, error)
	GetRule(ctx context.Context, id string) (*types.RuleRecord, error)
	ListRules(ctx context.Context, contractID string) ([]types.RuleRecord, error)
	ReviewRule(ctx context.Context, id string, status types.ValidationStatus) (*types.RuleRecord, error)
	CreateTermMapping(ctx context.Context, m types.NewTermMapping) (*types.TermMappingRecord, error)
	ListTermMappings(ctx context.Context, contractID string, status types.MappingStatus) ([]types.TermMappingRecord, error)
	SetTermMappingStatus(ctx context.Context, id string, status types.MappingStatus) (*types.TermMappingRecord, error)
	ConfirmedTermMappings(ctx context.Context, contractID string) ([]types.TermMapping, error)
	GetStats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}
