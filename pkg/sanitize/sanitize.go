package sanitize

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/depotgate/depotgate/pkg/errdefs"
)

const (
	// maxComponentLen bounds a sanitized path component.
	maxComponentLen = 200

	// maxIdentifierLen bounds tenant and task identifiers.
	maxIdentifierLen = 256
)

// Component rewrites s into a string safe to use as a single path component.
// Every '/', '\' and '.' character becomes '_', the result is truncated to
// 200 characters, and an empty input becomes "invalid".
func Component(s string) string {
	out := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '.':
			return '_'
		}
		return r
	}, s)
	if len(out) > maxComponentLen {
		out = out[:maxComponentLen]
	}
	if out == "" {
		return "invalid"
	}
	return out
}

// ValidateTaskID checks a root task identifier: ASCII alphanumerics, '_'
// and '-', between 1 and 256 characters.
func ValidateTaskID(s string) error {
	return validateIdentifier("task id", s)
}

// ValidateTenantID applies the same rule as ValidateTaskID to tenant ids.
func ValidateTenantID(s string) error {
	return validateIdentifier("tenant id", s)
}

func validateIdentifier(what, s string) error {
	if s == "" {
		return fmt.Errorf("%s is empty: %w", what, errdefs.ErrInvalidIdentifier)
	}
	if len(s) > maxIdentifierLen {
		return fmt.Errorf("%s exceeds %d characters: %w", what, maxIdentifierLen, errdefs.ErrInvalidIdentifier)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			continue
		}
		return fmt.Errorf("%s contains %q at offset %d: %w", what, string(c), i, errdefs.ErrInvalidIdentifier)
	}
	return nil
}

// ResolveUnderBase resolves rel against base and verifies the result stays
// inside base. Absolute rel paths are rejected outright.
func ResolveUnderBase(base, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute path %q: %w", rel, errdefs.ErrPathViolation)
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve base %q: %w", base, err)
	}
	resolved := filepath.Clean(filepath.Join(absBase, rel))
	if resolved != absBase && !strings.HasPrefix(resolved, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %q: %w", rel, base, errdefs.ErrPathViolation)
	}
	return resolved, nil
}

// NeutralizeSegments drops "." and ".." segments from a slash-separated
// relative path before it is resolved against a base.
func NeutralizeSegments(rel string) string {
	parts := strings.Split(rel, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "/")
}

// ParseLocation splits a storage or destination URI into scheme and body.
// A URI without a scheme is invalid.
func ParseLocation(uri string) (scheme, body string, err error) {
	idx := strings.Index(uri, "://")
	if idx <= 0 {
		return "", "", fmt.Errorf("location %q has no scheme: %w", uri, errdefs.ErrInvalidLocation)
	}
	return uri[:idx], uri[idx+3:], nil
}
