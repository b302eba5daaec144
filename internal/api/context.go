package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/licenseiq/licenseiq/internal/validation"
)

// contractIDContextKey is the context key for the contract ID (for logging).
type contractIDContextKey struct{}

// WithContractID returns a new context with the contract ID attached.
func WithContractID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contractIDContextKey{}, id)
}

// ContractIDFromContext extracts the contract ID from the context.
// Returns "" if not present.
func ContractIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contractIDContextKey{}).(string)
	return id
}

// contractIDHolder lets the outer logging middleware observe the contract ID
// resolved by an inner route group.
type contractIDHolder struct {
	id string
}

type contractIDHolderKey struct{}

// ContractMiddleware validates the {contractID} URL parameter and attaches it
// to the request context. Invalid IDs are rejected with 422.
func ContractMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "contractID")
		if errs := validation.ContractID(id); len(errs) > 0 {
			WriteValidationProblem(w, r, "Invalid contract ID", errs)
			return
		}

		if holder, ok := r.Context().Value(contractIDHolderKey{}).(*contractIDHolder); ok {
			holder.id = id
		}
		next.ServeHTTP(w, r.WithContext(WithContractID(r.Context(), id)))
	})
}
