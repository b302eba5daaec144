package validation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/licenseiq/licenseiq/internal/types"
)

func hasFieldError(errs Errors, field, contains string) bool {
	for _, e := range errs {
		if e.Field == field && strings.Contains(e.Message, contains) {
			return true
		}
	}
	return false
}

func validSynthesizeRequest() types.SynthesizeRequest {
	return types.SynthesizeRequest{
		ExtractionRunID: "run-1",
		Entities: []types.ExtractedEntity{
			{Type: "Royalty Rate", Label: "R1", Properties: map[string]any{"rate": 0.15}, Confidence: 0.9},
		},
		GraphNodes: []types.GraphNode{{ID: "n1", Label: "R1"}},
	}
}

func TestSynthesize(t *testing.T) {
	tests := []struct {
		name       string
		contractID string
		mutate     func(r *types.SynthesizeRequest)
		wantField  string // empty means valid
		wantMsg    string
	}{
		{
			name:       "valid",
			contractID: "contract-1",
			mutate:     func(r *types.SynthesizeRequest) {},
		},
		{
			name:       "no entities triggers context mode and is valid",
			contractID: "contract-1",
			mutate:     func(r *types.SynthesizeRequest) { r.Entities = nil },
		},
		{
			name:       "missing contract",
			contractID: "",
			mutate:     func(r *types.SynthesizeRequest) {},
			wantField:  "contract_id",
			wantMsg:    "required",
		},
		{
			name:       "blank extraction run",
			contractID: "contract-1",
			mutate:     func(r *types.SynthesizeRequest) { r.ExtractionRunID = " " },
			wantField:  "extraction_run_id",
			wantMsg:    "required",
		},
		{
			name:       "extraction run with spaces",
			contractID: "contract-1",
			mutate:     func(r *types.SynthesizeRequest) { r.ExtractionRunID = "run 1" },
			wantField:  "extraction_run_id",
			wantMsg:    "whitespace",
		},
		{
			name:       "entity confidence out of range",
			contractID: "contract-1",
			mutate:     func(r *types.SynthesizeRequest) { r.Entities[0].Confidence = 1.5 },
			wantField:  "entities[0].confidence",
			wantMsg:    "between 0.0 and 1.0",
		},
		{
			name:       "entity label too long",
			contractID: "contract-1",
			mutate:     func(r *types.SynthesizeRequest) { r.Entities[0].Label = strings.Repeat("l", MaxLabelLength+1) },
			wantField:  "entities[0].label",
			wantMsg:    "maximum length",
		},
		{
			name:       "entity type with null byte",
			contractID: "contract-1",
			mutate:     func(r *types.SynthesizeRequest) { r.Entities[0].Type = "fee\x00" },
			wantField:  "entities[0].type",
			wantMsg:    "null bytes",
		},
		{
			name:       "graph node without id",
			contractID: "contract-1",
			mutate:     func(r *types.SynthesizeRequest) { r.GraphNodes[0].ID = "" },
			wantField:  "graph_nodes[0].id",
			wantMsg:    "required",
		},
		{
			name:       "too many entities",
			contractID: "contract-1",
			mutate: func(r *types.SynthesizeRequest) {
				r.Entities = make([]types.ExtractedEntity, MaxEntities+1)
			},
			wantField: "entities",
			wantMsg:   fmt.Sprintf("maximum of %d entities", MaxEntities),
		},
		{
			name:       "too many graph nodes",
			contractID: "contract-1",
			mutate: func(r *types.SynthesizeRequest) {
				r.GraphNodes = make([]types.GraphNode, MaxGraphNodes+1)
			},
			wantField: "graph_nodes",
			wantMsg:   "maximum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSynthesizeRequest()
			tt.mutate(&req)
			errs := Synthesize(tt.contractID, req)

			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Errorf("Synthesize() = %v, want no errors", errs)
				}
				return
			}
			if !hasFieldError(errs, tt.wantField, tt.wantMsg) {
				t.Errorf("Synthesize() = %v, want %s error containing %q", errs, tt.wantField, tt.wantMsg)
			}
		})
	}
}

func TestSynthesize_OversizedListsSkipItemChecks(t *testing.T) {
	req := validSynthesizeRequest()
	req.Entities = make([]types.ExtractedEntity, MaxEntities+1)
	for i := range req.Entities {
		req.Entities[i].Confidence = 2
	}

	errs := Synthesize("contract-1", req)
	if len(errs) != 1 || errs[0].Field != "entities" {
		t.Errorf("Synthesize() = %v, want only the entities limit", errs)
	}
}

func TestSynthesize_ReportsAllFields(t *testing.T) {
	req := types.SynthesizeRequest{
		Entities: []types.ExtractedEntity{
			{Type: "fee", Confidence: -1},
			{Type: "royalty", Confidence: 2},
		},
	}

	errs := Synthesize("", req)
	for _, field := range []string{"contract_id", "extraction_run_id", "entities[0].confidence", "entities[1].confidence"} {
		if !hasFieldError(errs, field, "") {
			t.Errorf("missing %s error in %v", field, errs)
		}
	}
}

func TestReview(t *testing.T) {
	for _, status := range []types.ValidationStatus{types.StatusPending, types.StatusValidated} {
		if errs := Review(types.ReviewRequest{Status: status}); len(errs) != 0 {
			t.Errorf("Review(%s) = %v, want valid", status, errs)
		}
	}
	for _, status := range []types.ValidationStatus{"", "approved", "VALIDATED"} {
		if errs := Review(types.ReviewRequest{Status: status}); !hasFieldError(errs, "status", "pending, validated") {
			t.Errorf("Review(%q) = %v, want status error", status, errs)
		}
	}
}

func TestNewTermMapping(t *testing.T) {
	valid := types.CreateTermMappingRequest{
		ContractTerm:  "Net Sales",
		ERPFieldName:  "NET_SALES_AMT",
		ERPEntityName: "Invoice",
		Confidence:    0.95,
	}
	if errs := NewTermMapping(valid); len(errs) != 0 {
		t.Fatalf("NewTermMapping(valid) = %v", errs)
	}

	noEntity := valid
	noEntity.ERPEntityName = ""
	if errs := NewTermMapping(noEntity); len(errs) != 0 {
		t.Errorf("erp_entity_name is optional, got %v", errs)
	}

	tests := []struct {
		name      string
		mutate    func(r *types.CreateTermMappingRequest)
		wantField string
		wantMsg   string
	}{
		{"missing term", func(r *types.CreateTermMappingRequest) { r.ContractTerm = "" }, "contract_term", "required"},
		{"long term", func(r *types.CreateTermMappingRequest) { r.ContractTerm = strings.Repeat("t", MaxTermLength+1) }, "contract_term", "maximum length"},
		{"missing field", func(r *types.CreateTermMappingRequest) { r.ERPFieldName = "  " }, "erp_field_name", "required"},
		{"long entity", func(r *types.CreateTermMappingRequest) { r.ERPEntityName = strings.Repeat("e", MaxEntityLength+1) }, "erp_entity_name", "maximum length"},
		{"confidence above one", func(r *types.CreateTermMappingRequest) { r.Confidence = 1.2 }, "confidence", "between"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if errs := NewTermMapping(req); !hasFieldError(errs, tt.wantField, tt.wantMsg) {
				t.Errorf("NewTermMapping() = %v, want %s error containing %q", errs, tt.wantField, tt.wantMsg)
			}
		})
	}
}

func TestMappingStatus(t *testing.T) {
	for _, s := range []types.MappingStatus{types.MappingPending, types.MappingConfirmed, types.MappingRejected} {
		if errs := MappingStatus(s); len(errs) != 0 {
			t.Errorf("MappingStatus(%s) = %v, want valid", s, errs)
		}
	}
	if errs := MappingStatus("archived"); !hasFieldError(errs, "status", "pending, confirmed, rejected") {
		t.Errorf("MappingStatus(archived) = %v", errs)
	}
}

func TestTerm(t *testing.T) {
	if errs := Term("Net Sales"); len(errs) != 0 {
		t.Errorf("Term(valid) = %v", errs)
	}
	if errs := Term(""); !hasFieldError(errs, "term", "required") {
		t.Errorf("Term(empty) = %v", errs)
	}
	if errs := Term(strings.Repeat("t", MaxTermLength+1)); !hasFieldError(errs, "term", "maximum length") {
		t.Errorf("Term(long) = %v", errs)
	}
}

func TestContractIDAndID(t *testing.T) {
	if errs := ContractID("acme"); len(errs) != 0 {
		t.Errorf("ContractID(acme) = %v", errs)
	}
	if errs := ContractID("acme/../x y"); !hasFieldError(errs, "contract_id", "whitespace") {
		t.Errorf("ContractID with space = %v", errs)
	}
	if errs := ID("id", "01ARZ3NDEKTSV4RRFFQ69G5FAV"); len(errs) != 0 {
		t.Errorf("ID(valid) = %v", errs)
	}
	if errs := ID("id", "not-a-ulid"); !hasFieldError(errs, "id", "ULID") {
		t.Errorf("ID(invalid) = %v", errs)
	}
}
