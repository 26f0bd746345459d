package config

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePolicy = `
version: "1"
alert:
  subject: alerts.downloads
rules:
  - id: known-bad-hash
    match:
      hashes: ["DEADBEEF"]
    action: block
  - id: exe-from-cdn
    match:
      extensions: [exe, msi]
      url_globs: ["https://cdn.example/*"]
    action: notify
  - id: scanner-verdict
    match:
      verdicts: [malicious]
    action: audit
`

func TestParsePolicy(t *testing.T) {
	doc, err := ParsePolicy([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.AlertSubject() != "alerts.downloads" {
		t.Fatalf("alert subject = %q", doc.AlertSubject())
	}
	if len(doc.Rules) != 3 || doc.Rules[0].ID != "known-bad-hash" {
		t.Fatalf("unexpected rules: %+v", doc.Rules)
	}
	if !doc.MergeFindingsEnabled() {
		t.Fatal("merge findings should default on")
	}
}

func TestParsePolicyRejectsUnknownFields(t *testing.T) {
	_, err := ParsePolicy([]byte("version: \"1\"\nbogus: true\n"))
	if err == nil {
		t.Fatal("unknown top-level field accepted")
	}
}

func TestParsePolicyRejectsBadAction(t *testing.T) {
	_, err := ParsePolicy([]byte(`
rules:
  - id: r1
    action: quarantine
`))
	if err == nil {
		t.Fatal("unknown action accepted")
	}
}

func TestLoadPolicyMissingFileIsNoPolicy(t *testing.T) {
	doc, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil document, got %+v", doc)
	}
}

func TestLoadPolicyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(samplePolicy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc == nil || len(doc.Rules) != 3 {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestMatchedRuleFirstInOrder(t *testing.T) {
	doc, err := ParsePolicy([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cases := []struct {
		name string
		in   DecisionInput
		want string
	}{
		{
			name: "hash beats later rules",
			in:   DecisionInput{Filename: "f.exe", Extension: ".exe", URL: "https://cdn.example/f.exe", Hash: "deadbeef"},
			want: "known-bad-hash",
		},
		{
			name: "extension and url must both match",
			in:   DecisionInput{Filename: "f.exe", Extension: ".exe", URL: "https://cdn.example/f.exe"},
			want: "exe-from-cdn",
		},
		{
			name: "url alone does not satisfy conjunction",
			in:   DecisionInput{Filename: "notes.txt", Extension: ".txt", URL: "https://cdn.example/notes.txt"},
			want: "",
		},
		{
			name: "verdict match",
			in:   DecisionInput{Filename: "doc.pdf", Extension: ".pdf", Verdicts: []string{"Malicious"}},
			want: "scanner-verdict",
		},
		{
			name: "no match",
			in:   DecisionInput{Filename: "notes.txt", Extension: ".txt", URL: "https://other.example/notes.txt"},
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := doc.MatchedRule(tc.in)
			got := ""
			if rule != nil {
				got = rule.ID
			}
			if got != tc.want {
				t.Fatalf("matched %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMatchedRuleNilDocument(t *testing.T) {
	var doc *PolicyDocument
	if doc.MatchedRule(DecisionInput{Filename: "f.exe"}) != nil {
		t.Fatal("nil document matched a rule")
	}
	if doc.AlertSubject() != "" {
		t.Fatal("nil document has alert subject")
	}
	if !doc.MergeFindingsEnabled() {
		t.Fatal("nil document should default merge on")
	}
}

func TestRuleActionDefaultsToBlock(t *testing.T) {
	cases := map[string]string{
		"":        ActionBlock,
		"block":   ActionBlock,
		"Notify":  ActionNotify,
		" AUDIT ": ActionAudit,
		"bogus":   ActionBlock,
	}
	for raw, want := range cases {
		if got := RuleAction(&Rule{Action: raw}); got != want {
			t.Fatalf("RuleAction(%q) = %q, want %q", raw, got, want)
		}
	}
	if RuleAction(nil) != ActionBlock {
		t.Fatal("nil rule should block")
	}
}

func TestWildcardMatch(t *testing.T) {
	cases := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"https://cdn.example/*", "https://cdn.example/a/b/f.exe", true},
		{"https://cdn.example/*", "https://other.example/f.exe", false},
		{"*.exe", "Setup.EXE", true},
		{"f?le.txt", "file.txt", true},
		{"f?le.txt", "fle.txt", false},
		{"*", "anything", true},
		{"", "anything", false},
		{"exact", "exact", true},
		{"exact", "exactly", false},
	}
	for _, tc := range cases {
		if got := wildcardMatch(tc.pattern, tc.value); got != tc.want {
			t.Fatalf("wildcardMatch(%q, %q) = %v, want %v", tc.pattern, tc.value, got, tc.want)
		}
	}
}

func TestMatchExtension(t *testing.T) {
	if !matchExtension([]string{".exe", "msi"}, ".EXE") {
		t.Fatal("extension match should be case-insensitive and dot-tolerant")
	}
	if matchExtension([]string{"exe"}, "") {
		t.Fatal("empty extension matched")
	}
}

func TestMergeFindingsToggle(t *testing.T) {
	doc, err := ParsePolicy([]byte("version: \"1\"\nmerge_findings: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.MergeFindingsEnabled() {
		t.Fatal("merge_findings: false ignored")
	}
}
