// Package validator decides whether an upload matches the source extension of
// the bound conversion pair. Checks are pure and never touch the filesystem.
package validator

import (
	"path/filepath"
	"strings"

	"convertbot/internal/catalog"
)

// Reason explains a validation result.
type Reason string

const (
	ReasonAccepted         Reason = "accepted"
	ReasonMissingExtension Reason = "missing_extension"
	ReasonMismatch         Reason = "mismatch"
)

// Result is the outcome of Check. Observed is empty when the path has no extension.
type Result struct {
	Accepted bool
	Observed string
	Expected string
	Reason   Reason
}

// Validator compares upload paths against a pair's source extension.
// The zero value compares extensions exactly.
type Validator struct {
	FoldCase bool
}

// New returns a validator; foldCase enables case-insensitive comparison.
func New(foldCase bool) Validator {
	return Validator{FoldCase: foldCase}
}

// Check inspects the suffix of path and compares it with pair.SourceExt.
func (v Validator) Check(pair catalog.Pair, path string) Result {
	observed := extension(path)
	result := Result{Observed: observed, Expected: pair.SourceExt}
	switch {
	case observed == "":
		result.Reason = ReasonMissingExtension
	case v.equal(observed, pair.SourceExt):
		result.Accepted = true
		result.Reason = ReasonAccepted
	default:
		result.Reason = ReasonMismatch
	}
	return result
}

func (v Validator) equal(a, b string) bool {
	if v.FoldCase {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// extension returns the final dotted suffix of the base name. A bare dot
// or a leading-dot name such as ".bashrc" has no extension.
func extension(path string) string {
	base := filepath.Base(strings.TrimSpace(path))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	ext := filepath.Ext(base)
	if ext == "." || ext == base {
		return ""
	}
	return ext
}
