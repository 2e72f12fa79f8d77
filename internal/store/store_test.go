package store

import (
	"context"
	"testing"

	"github.com/hookline/hookline/internal/delivery"
)

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	s := New(nil)
	for _, status := range []delivery.Status{delivery.StatusPending, delivery.StatusProcessing, "bogus"} {
		if err := s.Finalize(context.Background(), "evt-1", "dst-1", status, 1, 0, ""); err == nil {
			t.Errorf("Finalize accepted non-terminal status %q", status)
		}
	}
}
