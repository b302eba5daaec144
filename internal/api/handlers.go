package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/licenseiq/licenseiq/internal/store"
	"github.com/licenseiq/licenseiq/internal/types"
	"github.com/licenseiq/licenseiq/internal/validation"
)

// Synthesizer runs the rule synthesis pipeline.
type Synthesizer interface {
	Synthesize(ctx context.Context, req types.SynthesisRequest) (*types.SynthesisResult, error)
	Terminology(ctx context.Context, contractID, term string) (string, error)
	Model() string
}

// Handler implements the API handlers
type Handler struct {
	store       store.Store
	synthesizer Synthesizer
	apiKey      string
	version     string
}

// NewHandler creates a new Handler
func NewHandler(s store.Store, syn Synthesizer, apiKey, version string) *Handler {
	return &Handler{
		store:       s,
		synthesizer: syn,
		apiKey:      apiKey,
		version:     version,
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

// pathULID reads and validates a ULID URL parameter.
func pathULID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := strings.ToUpper(chi.URLParam(r, name))
	if errs := validation.ID(name, id); len(errs) > 0 {
		WriteValidationProblem(w, r, "Invalid identifier", errs)
		return "", false
	}
	return id, true
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		slog.Error("health check failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	writeJSON(w, r, http.StatusOK, types.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Model:     h.synthesizer.Model(),
		RuleCount: stats.RuleCount,
	})
}

// Synthesize handles POST /api/v1/contracts/{contractID}/synthesize
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	contractID := ContractIDFromContext(r.Context())

	var req types.SynthesizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if errs := validation.Synthesize(contractID, req); len(errs) > 0 {
		WriteValidationProblem(w, r, "Request contains invalid fields", errs)
		return
	}

	result, err := h.synthesizer.Synthesize(r.Context(), types.SynthesisRequest{
		ContractID:      contractID,
		ExtractionRunID: req.ExtractionRunID,
		Entities:        req.Entities,
		GraphNodes:      req.GraphNodes,
	})
	if err != nil {
		slog.Error("synthesis failed",
			"component", "api",
			"contract_id", contractID,
			"extraction_run_id", req.ExtractionRunID,
			"error", err,
		)
		WriteProblem(w, r, http.StatusInternalServerError, "Synthesis aborted")
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// ListRules handles GET /api/v1/contracts/{contractID}/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	contractID := ContractIDFromContext(r.Context())

	rules, err := h.store.ListRules(r.Context(), contractID)
	if err != nil {
		slog.Error("list rules failed", "component", "api", "contract_id", contractID, "error", err)
		WriteStoreError(w, r, "rule", err)
		return
	}

	writeJSON(w, r, http.StatusOK, types.RuleListResponse{
		ContractID: contractID,
		Rules:      rules,
		Total:      len(rules),
	})
}

// GetRule handles GET /api/v1/rules/{id}
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	rule, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		WriteStoreError(w, r, "rule", err)
		return
	}

	writeJSON(w, r, http.StatusOK, rule)
}

// ReviewRule handles PATCH /api/v1/rules/{id}/review
func (h *Handler) ReviewRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	var req types.ReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if errs := validation.Review(req); len(errs) > 0 {
		WriteValidationProblem(w, r, "Request contains invalid fields", errs)
		return
	}

	rule, err := h.store.ReviewRule(r.Context(), id, req.Status)
	if err != nil {
		WriteStoreError(w, r, "rule", err)
		return
	}

	slog.Info("rule reviewed", "component", "api", "rule_id", id, "status", rule.ValidationStatus)
	writeJSON(w, r, http.StatusOK, rule)
}

// ListTermMappings handles GET /api/v1/contracts/{contractID}/term-mappings
func (h *Handler) ListTermMappings(w http.ResponseWriter, r *http.Request) {
	contractID := ContractIDFromContext(r.Context())

	status := types.MappingStatus(r.URL.Query().Get("status"))
	if status != "" {
		if errs := validation.MappingStatus(status); len(errs) > 0 {
			WriteValidationProblem(w, r, "Invalid status filter", errs)
			return
		}
	}

	mappings, err := h.store.ListTermMappings(r.Context(), contractID, status)
	if err != nil {
		slog.Error("list term mappings failed", "component", "api", "contract_id", contractID, "error", err)
		WriteStoreError(w, r, "term mapping", err)
		return
	}

	writeJSON(w, r, http.StatusOK, types.TermMappingListResponse{
		ContractID: contractID,
		Mappings:   mappings,
		Total:      len(mappings),
	})
}

// CreateTermMapping handles POST /api/v1/contracts/{contractID}/term-mappings
func (h *Handler) CreateTermMapping(w http.ResponseWriter, r *http.Request) {
	contractID := ContractIDFromContext(r.Context())

	var req types.CreateTermMappingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if errs := validation.NewTermMapping(req); len(errs) > 0 {
		WriteValidationProblem(w, r, "Request contains invalid fields", errs)
		return
	}

	mapping, err := h.store.CreateTermMapping(r.Context(), types.NewTermMapping{
		ContractID:    contractID,
		ContractTerm:  req.ContractTerm,
		ERPFieldName:  req.ERPFieldName,
		ERPEntityName: req.ERPEntityName,
		Confidence:    req.Confidence,
	})
	if err != nil {
		WriteStoreError(w, r, "term mapping", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, mapping)
}

// UpdateTermMapping handles PATCH /api/v1/term-mappings/{id}
func (h *Handler) UpdateTermMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	var req types.UpdateTermMappingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if errs := validation.MappingStatus(req.Status); len(errs) > 0 {
		WriteValidationProblem(w, r, "Request contains invalid fields", errs)
		return
	}

	mapping, err := h.store.SetTermMappingStatus(r.Context(), id, req.Status)
	if err != nil {
		WriteStoreError(w, r, "term mapping", err)
		return
	}

	slog.Info("term mapping updated", "component", "api", "mapping_id", id, "status", mapping.Status)
	writeJSON(w, r, http.StatusOK, mapping)
}

// Terminology handles GET /api/v1/contracts/{contractID}/terminology?term=
func (h *Handler) Terminology(w http.ResponseWriter, r *http.Request) {
	contractID := ContractIDFromContext(r.Context())

	term := r.URL.Query().Get("term")
	if errs := validation.Term(term); len(errs) > 0 {
		WriteValidationProblem(w, r, "Invalid term", errs)
		return
	}

	display, err := h.synthesizer.Terminology(r.Context(), contractID, term)
	if err != nil {
		slog.Error("terminology lookup failed", "component", "api", "contract_id", contractID, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, r, http.StatusOK, types.TerminologyResponse{Term: term, Display: display})
}
