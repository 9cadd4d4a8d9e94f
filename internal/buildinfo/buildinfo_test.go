package buildinfo

import (
	"strings"
	"testing"
)

func TestInfoPrefersLdflags(t *testing.T) {
	old := Commit
	Commit = "0123456789abcdef"
	defer func() { Commit = old }()

	if got := Info()["commit"]; got != Commit {
		t.Fatalf("commit = %q", got)
	}
	if s := String(); !strings.Contains(s, "(0123456789ab)") {
		t.Fatalf("String() = %q", s)
	}
}
