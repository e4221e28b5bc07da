package artifacts

import (
	"log/slog"
	"testing"
)

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil, "bucket", slog.New(slog.DiscardHandler)); err == nil {
		t.Fatalf("NewStore accepted nil client")
	}
}
