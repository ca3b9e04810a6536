// Package scope restricts which targets a test run may point at.
//
// Operators configure glob patterns over target URLs (host plus path),
// so a shared deployment can be limited to staging hosts or a single
// product surface. An empty configuration allows everything.
package scope

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned when a configured pattern cannot be
// compiled.
var ErrInvalidPattern = errors.New("invalid target pattern")

// Scope evaluates allow and deny patterns against target URLs.
//
//   - Allow patterns: the target must match at least one (empty list
//     allows all).
//   - Deny patterns: the target must not match any.
//
// Patterns are matched against "host/path" with the scheme stripped,
// e.g. "*.staging.example.com/**" or "shop.example.com/checkout/**".
// A Scope is safe for concurrent use after creation.
type Scope struct {
	allows []string
	denies []string
}

// Config configures a Scope.
type Config struct {
	// Allow are glob patterns a target must match (at least one).
	// Empty allows every target.
	Allow []string

	// Deny are glob patterns a target must not match (any).
	Deny []string
}

// New compiles the configured patterns.
func New(cfg Config) (*Scope, error) {
	for _, p := range append(append([]string{}, cfg.Allow...), cfg.Deny...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPattern, p)
		}
	}
	return &Scope{allows: cfg.Allow, denies: cfg.Deny}, nil
}

// Allows reports whether target is inside the configured scope. A
// malformed target URL is never allowed.
func (s *Scope) Allows(target string) bool {
	subject, err := normalizeTarget(target)
	if err != nil {
		return false
	}

	for _, p := range s.denies {
		if ok, _ := doublestar.Match(p, subject); ok {
			return false
		}
	}

	if len(s.allows) == 0 {
		return true
	}
	for _, p := range s.allows {
		if ok, _ := doublestar.Match(p, subject); ok {
			return true
		}
	}
	return false
}

// normalizeTarget reduces a target URL to the "host/path" form patterns
// are written against.
func normalizeTarget(target string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("target has no host: %s", target)
	}
	subject := u.Host + u.Path
	return strings.TrimSuffix(subject, "/"), nil
}
