// Package secrets removes credentials from document text before it is
// embedded and stored, using the Gitleaks rule set.
package secrets

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

var (
	// ErrInvalidRegex indicates an allowlist pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)

// Finding is one detected secret. Secret holds the raw value and must never
// be logged.
type Finding struct {
	RuleID      string
	Description string
	Line        int
	Secret      string
}

// Result is the outcome of redacting one text.
type Result struct {
	// Content is the input with every finding replaced by a marker.
	Content  string
	Findings []Finding
}

// Count returns the number of findings.
func (r Result) Count() int {
	return len(r.Findings)
}

// RuleIDs returns the distinct rule IDs that matched, sorted.
func (r Result) RuleIDs() []string {
	seen := make(map[string]struct{}, len(r.Findings))
	ids := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		if _, ok := seen[f.RuleID]; ok {
			continue
		}
		seen[f.RuleID] = struct{}{}
		ids = append(ids, f.RuleID)
	}
	sort.Strings(ids)
	return ids
}

// Redactor detects and masks secrets. It is safe for concurrent use.
type Redactor struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// New builds a Redactor from the default Gitleaks configuration. When
// allowlistPath names an existing TOML file its regexes are exempted from
// detection; a missing file is ignored.
func New(allowlistPath string) (*Redactor, error) {
	allowlist, err := LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating secret detector: %w", err)
	}
	if allowlist != nil && len(allowlist.Regexes) > 0 {
		applyAllowlist(&detector.Config, allowlist)
	}
	return &Redactor{detector: detector}, nil
}

// Redact replaces every detected secret with [REDACTED:<rule-id>].
func (r *Redactor) Redact(content string) Result {
	r.mu.Lock()
	found := r.detector.DetectString(content)
	r.mu.Unlock()

	if len(found) == 0 {
		return Result{Content: content}
	}

	findings := make([]Finding, 0, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		findings = append(findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			Secret:      f.Secret,
		})
	}
	return Result{Content: replaceFindings(content, findings), Findings: findings}
}

// replaceFindings substitutes longer secrets first so a secret that contains
// another is masked whole.
func replaceFindings(content string, findings []Finding) string {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Secret) > len(sorted[j].Secret)
	})

	for _, f := range sorted {
		content = strings.ReplaceAll(content, f.Secret, "[REDACTED:"+f.RuleID+"]")
	}
	return content
}

func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	global := &gitleaksConfig.Allowlist{
		Description: "ragd ingest allowlist",
	}
	for _, pattern := range allowlist.Regexes {
		// Patterns were compiled once already in LoadAllowlist.
		re := regexp.MustCompile(pattern)
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
}
