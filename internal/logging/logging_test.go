package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var out, errOut bytes.Buffer
	l := New(&out, &errOut, LevelInfo)
	l.Debug("should not appear")
	l.Info("hello", F("count", 3))

	if strings.Contains(out.String(), "should not appear") {
		t.Fatalf("debug line should have been filtered: %q", out.String())
	}
	if !strings.Contains(out.String(), "hello") || !strings.Contains(out.String(), "count=3") {
		t.Fatalf("missing expected content: %q", out.String())
	}
}

func TestErrorGoesToErrOut(t *testing.T) {
	var out, errOut bytes.Buffer
	l := New(&out, &errOut, LevelInfo)
	l.Error("boom")
	if !strings.Contains(errOut.String(), "boom") {
		t.Fatalf("expected error on errOut, got %q", errOut.String())
	}
	if strings.Contains(out.String(), "boom") {
		t.Fatalf("error line leaked to out: %q", out.String())
	}
}

func TestWithCarriesFields(t *testing.T) {
	var out, errOut bytes.Buffer
	l := New(&out, &errOut, LevelDebug).With(F("subdir", "noarch"))
	l.Debug("queried")
	if !strings.Contains(out.String(), "subdir=noarch") {
		t.Fatalf("expected carried field, got %q", out.String())
	}
}

func TestNopDiscardsEverything(t *testing.T) {
	// Nop must not panic and must be safely chainable.
	Nop.With(F("a", 1)).Info("noop")
}
