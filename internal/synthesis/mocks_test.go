package synthesis

import (
	"context"
	"errors"
	"fmt"

	"github.com/licenseiq/licenseiq/internal/llm"
	"github.com/licenseiq/licenseiq/internal/types"
)

// mockCompleter answers completions with respond and records every request.
type mockCompleter struct {
	requests []llm.Request
	respond  func(req llm.Request) (string, error)
}

func (m *mockCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	m.requests = append(m.requests, req)
	if m.respond == nil {
		return "", errors.New("no response configured")
	}
	return m.respond(req)
}

func (m *mockCompleter) ModelName() string { return "test-model" }

// replies returns the given responses in order, failing once exhausted.
func replies(responses ...string) func(llm.Request) (string, error) {
	i := 0
	return func(llm.Request) (string, error) {
		if i >= len(responses) {
			return "", fmt.Errorf("unexpected completion call %d", i+1)
		}
		r := responses[i]
		i++
		return r, nil
	}
}

func (m *mockCompleter) calls(temperature float64) int {
	n := 0
	for _, r := range m.requests {
		if r.Temperature == temperature {
			n++
		}
	}
	return n
}

// memStore is an in-memory RuleStore keyed like the SQL store.
type memStore struct {
	mappings    []types.TermMapping
	mappingErr  error
	saveErr     error
	failOnSave  int // 1-based save call that fails; 0 means saveErr applies to every call
	saveCalls   int
	saved       []types.NewRule
	ids         map[string]string
	mappingHits int
}

func newMemStore(mappings ...types.TermMapping) *memStore {
	return &memStore{mappings: mappings, ids: make(map[string]string)}
}

func (m *memStore) ConfirmedTermMappings(_ context.Context, _ string) ([]types.TermMapping, error) {
	m.mappingHits++
	if m.mappingErr != nil {
		return nil, m.mappingErr
	}
	return m.mappings, nil
}

func (m *memStore) SaveRule(_ context.Context, rule types.NewRule) (*types.RuleRecord, error) {
	m.saveCalls++
	if m.saveErr != nil && (m.failOnSave == 0 || m.failOnSave == m.saveCalls) {
		return nil, m.saveErr
	}
	m.saved = append(m.saved, rule)

	key := rule.ContractID + "|" + rule.ExtractionRunID + "|" + rule.SourceKey
	id, ok := m.ids[key]
	if !ok {
		id = fmt.Sprintf("rule-%d", len(m.ids)+1)
		m.ids[key] = id
	}
	return &types.RuleRecord{
		SynthesizedRule:  rule.SynthesizedRule,
		ID:               id,
		ContractID:       rule.ContractID,
		ExtractionRunID:  rule.ExtractionRunID,
		ValidationStatus: rule.ValidationStatus,
		IsActive:         rule.IsActive,
	}, nil
}

// recordingArchiver captures archived reports.
type recordingArchiver struct {
	reports []types.RunReport
	err     error
}

func (a *recordingArchiver) Archive(_ context.Context, report types.RunReport) error {
	a.reports = append(a.reports, report)
	return a.err
}
