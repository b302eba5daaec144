// Package validation checks synthesis requests, rule reviews and term mapping
// changes before they reach the pipeline or the store. Every check reports
// all failing fields at once.
package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// FieldError is a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is the set of rejected fields of one input. A non-empty Errors is
// an error; use Err to get a nil error when nothing failed.
type Errors []FieldError

func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return "invalid input"
	case 1:
		return fmt.Sprintf("invalid input: %s: %s", e[0].Field, e[0].Message)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid input (%d errors):", len(e))
	for _, fe := range e {
		fmt.Fprintf(&b, "\n  %s: %s", fe.Field, fe.Message)
	}
	return b.String()
}

// Err returns e as an error, or nil when e is empty.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Collector accumulates field errors across checks.
type Collector struct {
	errs Errors
}

// Fail records a failure for field.
func (c *Collector) Fail(field, format string, args ...any) {
	c.errs = append(c.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Merge records errors produced by another check.
func (c *Collector) Merge(errs Errors) {
	c.errs = append(c.errs, errs...)
}

// Errors returns everything recorded so far.
func (c *Collector) Errors() Errors {
	return c.errs
}

// Required fails when value is empty or only whitespace, and reports
// whether the value was present.
func (c *Collector) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		c.Fail(field, "is required")
		return false
	}
	return true
}

// Text checks free text coming from contracts and model-facing input: valid
// UTF-8, no NUL bytes, at most max characters.
func (c *Collector) Text(field, value string, max int) {
	if !utf8.ValidString(value) {
		c.Fail(field, "must be valid UTF-8")
		return
	}
	if strings.ContainsRune(value, 0) {
		c.Fail(field, "must not contain null bytes")
	}
	if utf8.RuneCountInString(value) > max {
		c.Fail(field, "exceeds maximum length of %d characters", max)
	}
}

// Identifier checks an externally assigned ID such as a contract or
// extraction run ID. It must be present, short, and free of whitespace and
// control characters so it can appear in URLs, logs and archive keys.
func (c *Collector) Identifier(field, value string) {
	if !c.Required(field, value) {
		return
	}
	c.Text(field, value, MaxIDLength)
	if strings.IndexFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		c.Fail(field, "must not contain whitespace or control characters")
	}
}

// ULID checks an ID issued by this service for rules and term mappings.
func (c *Collector) ULID(field, value string) {
	if _, err := ulid.ParseStrict(value); err != nil {
		c.Fail(field, "must be a valid ULID")
	}
}

// Confidence checks a score in [0, 1]. NaN is rejected.
func (c *Collector) Confidence(field string, value float64) {
	if math.IsNaN(value) || value < 0 || value > 1 {
		c.Fail(field, "must be between 0.0 and 1.0")
	}
}

// OneOf checks value against the allowed set.
func (c *Collector) OneOf(field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	c.Fail(field, "must be one of: %s", strings.Join(allowed, ", "))
}

// AtMost fails when a list holds more than max items.
func (c *Collector) AtMost(field string, n, max int, noun string) bool {
	if n > max {
		c.Fail(field, "exceeds maximum of %d %s", max, noun)
		return false
	}
	return true
}
