package difftext

import (
	"strings"
	"testing"
)

func TestUnifiedIdenticalContent(t *testing.T) {
	if out := Unified("a\nb\n", "a\nb\n"); out != "" {
		t.Errorf("identical content should produce an empty diff, got %q", out)
	}
}

func TestUnifiedAddedAndRemovedLines(t *testing.T) {
	before := "one\ntwo\nthree\n"
	after := "one\n2\nthree\nfour\n"

	out := Unified(before, after)

	if !strings.Contains(out, "-two") {
		t.Errorf("expected removed line, got:\n%s", out)
	}
	if !strings.Contains(out, "+2") || !strings.Contains(out, "+four") {
		t.Errorf("expected added lines, got:\n%s", out)
	}
	if !strings.Contains(out, " one") {
		t.Errorf("expected context line, got:\n%s", out)
	}
}

func TestChangedLineCounts(t *testing.T) {
	before := "a\nb\nc\n"
	after := "a\nx\ny\nc\n"

	added, removed := ChangedLineCounts(before, after)
	if added != 2 {
		t.Errorf("expected 2 added lines, got %d", added)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed line, got %d", removed)
	}
}
