package buildinfo

import (
	"strings"
	"testing"
)

func TestInfoUsesLinkedCommit(t *testing.T) {
	orig := Commit
	Commit = "abc123"
	t.Cleanup(func() { Commit = orig })

	info := Info()
	if !strings.Contains(info, "commit=abc123") {
		t.Fatalf("info = %q", info)
	}
	if !strings.Contains(info, "go=go") {
		t.Fatalf("missing go version: %q", info)
	}
}

func TestInfoFallsBackWithoutCommit(t *testing.T) {
	orig := Commit
	Commit = ""
	t.Cleanup(func() { Commit = orig })

	// Test binaries carry no ldflags commit; the fallback is the embedded
	// VCS revision or "unknown", never empty.
	if strings.Contains(Info(), "commit= ") {
		t.Fatalf("empty commit leaked: %q", Info())
	}
}
