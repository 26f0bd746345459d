package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule actions. A rule that names no action blocks.
const (
	ActionBlock  = "block"
	ActionNotify = "notify"
	ActionAudit  = "audit"
)

// PolicyDocument is the ordered download policy. Declaration order is
// evaluation order; the first matching rule wins.
type PolicyDocument struct {
	Version       string      `yaml:"version"`
	Alert         AlertConfig `yaml:"alert"`
	MergeFindings *bool       `yaml:"merge_findings"`
	Rules         []Rule      `yaml:"rules"`
}

// AlertConfig names the bus subject alert messages are published to. An
// empty subject means no alert sink is configured.
type AlertConfig struct {
	Subject string `yaml:"subject"`
}

// Rule pairs a match predicate with an action and optional notification
// message templates.
type Rule struct {
	ID      string       `yaml:"id"`
	Match   RuleMatch    `yaml:"match"`
	Action  string       `yaml:"action"`
	Message *RuleMessage `yaml:"message"`
}

// RuleMatch predicates over download attributes. Every populated field must
// match; values within a field are alternatives. An empty match matches any
// download.
type RuleMatch struct {
	FilenameGlobs []string `yaml:"filename_globs"`
	Extensions    []string `yaml:"extensions"`
	URLGlobs      []string `yaml:"url_globs"`
	MimeTypes     []string `yaml:"mime_types"`
	ReferrerGlobs []string `yaml:"referrer_globs"`
	Hashes        []string `yaml:"hashes"`
	Verdicts      []string `yaml:"verdicts"`
}

// RuleMessage overrides the default notification title/body. Bodies may use
// {filename}, {url}, {referrer}, {hash} and {mime} tokens.
type RuleMessage struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// DecisionInput captures the download attributes a rule predicates over.
type DecisionInput struct {
	Filename  string
	Extension string
	URL       string
	Mime      string
	Referrer  string
	Hash      string
	Verdicts  []string
}

// LoadPolicy reads YAML from the given path. A missing file or empty path
// returns nil with no error (no policy, nothing blocked).
func LoadPolicy(path string) (*PolicyDocument, error) {
	if path == "" {
		return nil, nil
	}
	// #nosec G304 -- policy path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	doc, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return doc, nil
}

// ParsePolicy parses and schema-validates a policy document from YAML bytes.
func ParsePolicy(data []byte) (*PolicyDocument, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if err := validateConfigSchema("download policy", policySchemaFile, data); err != nil {
		return nil, err
	}
	var doc PolicyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return &doc, nil
}

// AlertSubject returns the configured alert sink subject, or empty.
func (p *PolicyDocument) AlertSubject() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Alert.Subject)
}

// MergeFindingsEnabled reports whether inspection findings lists are
// union-merged across fragments. Defaults to true; setting
// merge_findings: false restores plain override.
func (p *PolicyDocument) MergeFindingsEnabled() bool {
	if p == nil || p.MergeFindings == nil {
		return true
	}
	return *p.MergeFindings
}

// MatchedRule returns the first rule whose predicate matches the input, in
// declaration order, or nil when no rule applies.
func (p *PolicyDocument) MatchedRule(in DecisionInput) *Rule {
	if p == nil {
		return nil
	}
	for i := range p.Rules {
		if matchRule(p.Rules[i].Match, in) {
			return &p.Rules[i]
		}
	}
	return nil
}

// RuleAction normalizes a rule's action, defaulting to block.
func RuleAction(r *Rule) string {
	if r == nil {
		return ActionBlock
	}
	switch strings.ToLower(strings.TrimSpace(r.Action)) {
	case ActionNotify:
		return ActionNotify
	case ActionAudit:
		return ActionAudit
	default:
		return ActionBlock
	}
}

func matchRule(match RuleMatch, in DecisionInput) bool {
	if len(match.FilenameGlobs) > 0 && !matchAnyPattern(match.FilenameGlobs, in.Filename) {
		return false
	}
	if len(match.Extensions) > 0 && !matchExtension(match.Extensions, in.Extension) {
		return false
	}
	if len(match.URLGlobs) > 0 && !matchAnyPattern(match.URLGlobs, in.URL) {
		return false
	}
	if len(match.MimeTypes) > 0 && !matchAnyPattern(match.MimeTypes, in.Mime) {
		return false
	}
	if len(match.ReferrerGlobs) > 0 && !matchAnyPattern(match.ReferrerGlobs, in.Referrer) {
		return false
	}
	if len(match.Hashes) > 0 && !containsFold(match.Hashes, in.Hash) {
		return false
	}
	if len(match.Verdicts) > 0 && !containsAnyFold(match.Verdicts, in.Verdicts) {
		return false
	}
	return true
}

func matchExtension(patterns []string, ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return false
	}
	for _, pat := range patterns {
		pat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(pat), "."))
		if pat != "" && pat == ext {
			return true
		}
	}
	return false
}

func matchAnyPattern(patterns []string, value string) bool {
	for _, pat := range patterns {
		if wildcardMatch(pat, value) {
			return true
		}
	}
	return false
}

// wildcardMatch matches case-insensitively with '*' spanning any run of
// characters (including separators) and '?' matching a single character.
func wildcardMatch(pattern, value string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	return wildcard(pattern, strings.ToLower(value))
}

func wildcard(pattern, value string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			pattern = strings.TrimLeft(pattern, "*")
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(value); i++ {
				if wildcard(pattern, value[i:]) {
					return true
				}
			}
			return false
		case '?':
			if value == "" {
				return false
			}
			pattern = pattern[1:]
			value = value[1:]
		default:
			if value == "" || pattern[0] != value[0] {
				return false
			}
			pattern = pattern[1:]
			value = value[1:]
		}
	}
	return value == ""
}

func containsFold(list []string, value string) bool {
	if value == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}

func containsAnyFold(list []string, values []string) bool {
	for _, v := range values {
		if containsFold(list, v) {
			return true
		}
	}
	return false
}
