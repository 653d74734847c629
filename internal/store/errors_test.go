package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors_WrappedIdentity(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrDuplicateAdmin", ErrDuplicateAdmin},
		{"ErrInvalidChunk", ErrInvalidChunk},
	}

	for _, s := range sentinels {
		t.Run(s.name+"_wrapped", func(t *testing.T) {
			if s.err.Error() == "" {
				t.Fatal("Sentinel error should have a message")
			}
			wrapped := fmt.Errorf("operation failed: %w", s.err)
			if !errors.Is(wrapped, s.err) {
				t.Errorf("errors.Is should return true for wrapped %s", s.name)
			}
		})
	}
}
