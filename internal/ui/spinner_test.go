package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestSpinner_Success(t *testing.T) {
	var buf bytes.Buffer
	sp := NewSpinnerTo(&buf, "Loading models...")
	sp.Success("342 models")

	if !strings.Contains(buf.String(), "✓ 342 models") {
		t.Errorf("expected success line, got %q", buf.String())
	}
}

func TestSpinner_Fail(t *testing.T) {
	var buf bytes.Buffer
	sp := NewSpinnerTo(&buf, "Loading models...")
	sp.Fail("Could not load models")

	if !strings.Contains(buf.String(), "✗ Could not load models") {
		t.Errorf("expected failure line, got %q", buf.String())
	}
}
