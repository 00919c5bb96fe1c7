package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorWrapping(t *testing.T) {
	base := errors.New("connection refused")
	err := NewAppError("vector", "fetch glucose", KindUnavailable, base)

	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to match base")
	}
	if got := err.Error(); got != "vector: fetch glucose: connection refused" {
		t.Fatalf("unexpected message %q", got)
	}
	if KindOf(fmt.Errorf("outer: %w", err)) != KindUnavailable {
		t.Fatalf("expected unavailable kind through wrapping")
	}
	if KindOf(base) != KindInternal {
		t.Fatalf("expected internal kind for plain errors")
	}
}
