package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/licenseiq/licenseiq/internal/store"
	"github.com/licenseiq/licenseiq/internal/validation"
)

const problemBaseURI = "https://licenseiq.dev/errors/"

// Problem is an RFC 7807 problem document. Errors is set only for
// validation failures.
type Problem struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail"`
	Instance string            `json:"instance,omitempty"`
	Errors   validation.Errors `json:"errors,omitempty"`
}

// problemSlugs names the problem types the API emits.
var problemSlugs = map[int]string{
	http.StatusBadRequest:          "bad-request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusNotFound:            "not-found",
	http.StatusConflict:            "conflict",
	http.StatusUnprocessableEntity: "validation-error",
	http.StatusInternalServerError: "internal-error",
	http.StatusServiceUnavailable:  "service-unavailable",
}

func newProblem(r *http.Request, status int, detail string) Problem {
	slug, ok := problemSlugs[status]
	if !ok {
		slug = "unknown"
	}
	title := http.StatusText(status)
	if status == http.StatusUnprocessableEntity {
		title = "Validation Error"
	}
	return Problem{
		Type:     problemBaseURI + slug,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

func writeProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// WriteProblem writes a problem response for status.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblem(w, newProblem(r, status, detail))
}

// WriteValidationProblem writes a 422 listing the rejected fields.
func WriteValidationProblem(w http.ResponseWriter, r *http.Request, detail string, errs validation.Errors) {
	p := newProblem(r, http.StatusUnprocessableEntity, detail)
	p.Errors = errs
	writeProblem(w, p)
}

// WriteStoreError maps a store failure on resource ("rule", "term mapping")
// to a problem response. Unknown errors become a 500 without details.
func WriteStoreError(w http.ResponseWriter, r *http.Request, resource string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, fmt.Sprintf("The %s does not exist", resource))
	case errors.Is(err, store.ErrDuplicateMapping):
		WriteProblem(w, r, http.StatusConflict, "A term mapping for this contract term and ERP field already exists")
	case errors.Is(err, store.ErrInvalidStatus):
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid %s status", resource))
	default:
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
