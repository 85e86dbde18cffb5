// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
)

// Subject is the immutable input to a pipeline run: the organization being
// researched plus optional hints that shape the prompts.
type Subject struct {
	// Name is the organization's display name.
	Name string `json:"name" yaml:"name"`

	// CanonicalURL is the organization's primary web address.
	CanonicalURL string `json:"canonical_url" yaml:"canonical_url"`

	// Locale is an optional BCP 47 tag (e.g. "de-DE") for regional focus.
	Locale string `json:"locale,omitempty" yaml:"locale,omitempty"`

	// SectorHint is an optional free-text industry hint (e.g. "logistics").
	SectorHint string `json:"sector_hint,omitempty" yaml:"sector_hint,omitempty"`
}

// Validate reports whether the subject carries a name and an absolute
// http(s) URL.
func (s Subject) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("subject name is empty")
	}
	u, err := url.Parse(strings.TrimSpace(s.CanonicalURL))
	if err != nil {
		return fmt.Errorf("parsing canonical URL %q: %w", s.CanonicalURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("canonical URL %q must be an absolute http(s) URL", s.CanonicalURL)
	}
	return nil
}

// ID returns a stable identifier for the subject, used to key cached phase
// results and timings. It is the first 12 hex characters of
// SHA-256(normalized canonical URL), so "https://www.Acme.com/" and
// "http://acme.com" share an ID.
func (s Subject) ID() string {
	sum := sha256.Sum256([]byte(NormalizeURL(s.CanonicalURL)))
	return fmt.Sprintf("%x", sum)[:12]
}

// NormalizeURL lower-cases the host and drops the scheme, a leading "www."
// and any trailing slash. Unparseable input is lower-cased and trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(raw), "/")
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return strings.TrimSuffix(host+u.EscapedPath(), "/")
}
