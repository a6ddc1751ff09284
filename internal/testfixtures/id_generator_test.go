package testfixtures

import "testing"

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	t.Parallel()

	gen := NewIDGenerator("policy")
	first, second := gen.Next(), gen.Next()
	if first != "policy-1" || second != "policy-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Issued() != 2 {
		t.Fatalf("expected 2 issued identifiers, got %d", gen.Issued())
	}
	if got := NewIDGenerator("").NextFunc()(); got != "guid-1" {
		t.Fatalf("expected default prefix, got %q", got)
	}
}
